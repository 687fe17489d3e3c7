package aws

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
)

// EC2UsageAPI covers the EC2 describe calls that count quota usage.
type EC2UsageAPI interface {
	ec2.DescribeInstancesAPIClient
	ec2.DescribeVolumesAPIClient
	ec2.DescribeVpcsAPIClient
	ec2.DescribeNetworkInterfacesAPIClient
	ec2.DescribeSecurityGroupsAPIClient
	DescribeAddresses(ctx context.Context, in *ec2.DescribeAddressesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeAddressesOutput, error)
}

type ELBUsageAPI interface {
	elbv2.DescribeLoadBalancersAPIClient
	elbv2.DescribeTargetGroupsAPIClient
}

// UsageAPIs are the clients the direct usage readers call.
type UsageAPIs struct {
	EC2         EC2UsageAPI
	ELB         ELBUsageAPI
	AutoScaling autoscaling.DescribeAutoScalingGroupsAPIClient
	EKS         eks.ListClustersAPIClient
}

// UsageAPIsFrom picks the usage clients out of a region's client bundle.
func UsageAPIsFrom(c *Clients) UsageAPIs {
	return UsageAPIs{EC2: c.EC2, ELB: c.ELBv2, AutoScaling: c.AutoScaling, EKS: c.EKS}
}

type usageFunc func(ctx context.Context) (float64, error)

type usageHandler struct {
	serviceCode string
	read        usageFunc
}

// UsageReader counts the current usage of quotas that have no usage metric,
// by describing the resources they limit.
type UsageReader struct {
	handlers map[string]usageHandler
}

func NewUsageReader(apis UsageAPIs) *UsageReader {
	r := &UsageReader{handlers: map[string]usageHandler{}}
	add := func(code, service string, read usageFunc) {
		r.handlers[code] = usageHandler{serviceCode: service, read: read}
	}

	add("L-1194D53C", "eks", apis.eksClusters)

	add("L-1216C47A", "ec2", apis.runningInstances)
	add("L-0263D0A3", "ec2", apis.elasticIPs)

	add("L-D18FCD1D", "ebs", apis.volumeTiB("gp2"))
	add("L-7A658B76", "ebs", apis.volumeTiB("gp3"))
	add("L-FD252861", "ebs", apis.volumeTiB("io1"))
	add("L-09BD8365", "ebs", apis.volumeTiB("io2"))

	add("L-F678F1CE", "vpc", apis.vpcs)
	add("L-DF5E4CA3", "vpc", apis.networkInterfaces)
	add("L-E79EC296", "vpc", apis.securityGroups)

	add("L-53DA6B97", "elasticloadbalancing", apis.loadBalancers("application"))
	add("L-69A177A2", "elasticloadbalancing", apis.loadBalancers("network"))
	add("L-B22855CB", "elasticloadbalancing", apis.targetGroups)

	add("L-CDE20ADC", "autoscaling", apis.autoScalingGroups)
	return r
}

// Supports reports whether quotaCode has a direct usage reader, and for
// which service.
func (r *UsageReader) Supports(quotaCode string) (string, bool) {
	h, ok := r.handlers[quotaCode]
	return h.serviceCode, ok
}

// QuotaCodes returns the supported quota codes, sorted.
func (r *UsageReader) QuotaCodes() []string {
	codes := make([]string, 0, len(r.handlers))
	for code := range r.handlers {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	return codes
}

// Usage reads the current usage of quotaCode. It fails for unsupported
// codes and for a service code other than the reader's.
func (r *UsageReader) Usage(ctx context.Context, serviceCode, quotaCode string) (float64, error) {
	h, ok := r.handlers[quotaCode]
	if !ok {
		return 0, fmt.Errorf("no usage reader for %s", quotaCode)
	}
	if h.serviceCode != serviceCode {
		return 0, fmt.Errorf("usage reader for %s belongs to %s, not %s", quotaCode, h.serviceCode, serviceCode)
	}
	return catch(ctx, "Usage/"+quotaCode, true, func() (float64, error) {
		return h.read(ctx)
	})
}

func (a UsageAPIs) eksClusters(ctx context.Context) (float64, error) {
	count := 0
	paginator := eks.NewListClustersPaginator(a.EKS, &eks.ListClustersInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, err
		}
		count += len(output.Clusters)
	}
	return float64(count), nil
}

func (a UsageAPIs) runningInstances(ctx context.Context) (float64, error) {
	input := &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{{Name: aws.String("instance-state-name"), Values: []string{"running"}}},
	}
	count := 0
	paginator := ec2.NewDescribeInstancesPaginator(a.EC2, input)
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, err
		}
		for _, reservation := range output.Reservations {
			count += len(reservation.Instances)
		}
	}
	return float64(count), nil
}

func (a UsageAPIs) elasticIPs(ctx context.Context) (float64, error) {
	output, err := a.EC2.DescribeAddresses(ctx, &ec2.DescribeAddressesInput{})
	if err != nil {
		return 0, err
	}
	return float64(len(output.Addresses)), nil
}

// volumeTiB sums the size of volumes of one type. EBS storage quotas are
// expressed in TiB.
func (a UsageAPIs) volumeTiB(volumeType string) usageFunc {
	return func(ctx context.Context) (float64, error) {
		input := &ec2.DescribeVolumesInput{
			Filters: []ec2types.Filter{{Name: aws.String("volume-type"), Values: []string{volumeType}}},
		}
		var totalGiB int64
		paginator := ec2.NewDescribeVolumesPaginator(a.EC2, input)
		for paginator.HasMorePages() {
			output, err := paginator.NextPage(ctx)
			if err != nil {
				return 0, err
			}
			for _, v := range output.Volumes {
				if v.Size != nil {
					totalGiB += int64(*v.Size)
				}
			}
		}
		return float64(totalGiB) / 1024, nil
	}
}

func (a UsageAPIs) vpcs(ctx context.Context) (float64, error) {
	count := 0
	paginator := ec2.NewDescribeVpcsPaginator(a.EC2, &ec2.DescribeVpcsInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, err
		}
		count += len(output.Vpcs)
	}
	return float64(count), nil
}

func (a UsageAPIs) networkInterfaces(ctx context.Context) (float64, error) {
	count := 0
	paginator := ec2.NewDescribeNetworkInterfacesPaginator(a.EC2, &ec2.DescribeNetworkInterfacesInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, err
		}
		count += len(output.NetworkInterfaces)
	}
	return float64(count), nil
}

func (a UsageAPIs) securityGroups(ctx context.Context) (float64, error) {
	count := 0
	paginator := ec2.NewDescribeSecurityGroupsPaginator(a.EC2, &ec2.DescribeSecurityGroupsInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, err
		}
		count += len(output.SecurityGroups)
	}
	return float64(count), nil
}

func (a UsageAPIs) loadBalancers(lbType string) usageFunc {
	return func(ctx context.Context) (float64, error) {
		count := 0
		paginator := elbv2.NewDescribeLoadBalancersPaginator(a.ELB, &elbv2.DescribeLoadBalancersInput{})
		for paginator.HasMorePages() {
			output, err := paginator.NextPage(ctx)
			if err != nil {
				return 0, err
			}
			for _, lb := range output.LoadBalancers {
				if strings.EqualFold(string(lb.Type), lbType) {
					count++
				}
			}
		}
		return float64(count), nil
	}
}

func (a UsageAPIs) targetGroups(ctx context.Context) (float64, error) {
	count := 0
	paginator := elbv2.NewDescribeTargetGroupsPaginator(a.ELB, &elbv2.DescribeTargetGroupsInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, err
		}
		count += len(output.TargetGroups)
	}
	return float64(count), nil
}

func (a UsageAPIs) autoScalingGroups(ctx context.Context) (float64, error) {
	count := 0
	paginator := autoscaling.NewDescribeAutoScalingGroupsPaginator(a.AutoScaling, &autoscaling.DescribeAutoScalingGroupsInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, err
		}
		count += len(output.AutoScalingGroups)
	}
	return float64(count), nil
}
