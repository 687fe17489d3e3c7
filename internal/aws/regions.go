package aws

import (
	"context"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/yuxishi/aws-quota-monitor/internal/model"
)

type RegionsAPI interface {
	DescribeRegions(ctx context.Context, in *ec2.DescribeRegionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error)
}

// GetRegions lists the regions enabled for the account, sorted by code.
func GetRegions(ctx context.Context, api RegionsAPI) ([]model.Region, error) {
	return catch(ctx, "DescribeRegions", true, func() ([]model.Region, error) {
		output, err := api.DescribeRegions(ctx, &ec2.DescribeRegionsInput{AllRegions: aws.Bool(false)})
		if err != nil {
			return nil, err
		}
		regions := make([]model.Region, 0, len(output.Regions))
		for _, r := range output.Regions {
			name := safeString(r.RegionName)
			regions = append(regions, model.Region{Code: name, Name: name})
		}
		slices.SortFunc(regions, func(a, b model.Region) int { return strings.Compare(a.Code, b.Code) })
		return regions, nil
	})
}
