package aws

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	asgtypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEC2 struct{}

func (fakeEC2) DescribeInstances(context.Context, *ec2.DescribeInstancesInput, ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	return &ec2.DescribeInstancesOutput{Reservations: []ec2types.Reservation{
		{Instances: make([]ec2types.Instance, 2)},
		{Instances: make([]ec2types.Instance, 3)},
	}}, nil
}

func (fakeEC2) DescribeVolumes(_ context.Context, in *ec2.DescribeVolumesInput, _ ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error) {
	if in.Filters[0].Values[0] != "gp3" {
		return &ec2.DescribeVolumesOutput{}, nil
	}
	return &ec2.DescribeVolumesOutput{Volumes: []ec2types.Volume{
		{Size: aws.Int32(1024)},
		{Size: aws.Int32(512)},
		{},
	}}, nil
}

func (fakeEC2) DescribeVpcs(context.Context, *ec2.DescribeVpcsInput, ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error) {
	return &ec2.DescribeVpcsOutput{Vpcs: make([]ec2types.Vpc, 4)}, nil
}

func (fakeEC2) DescribeNetworkInterfaces(context.Context, *ec2.DescribeNetworkInterfacesInput, ...func(*ec2.Options)) (*ec2.DescribeNetworkInterfacesOutput, error) {
	return &ec2.DescribeNetworkInterfacesOutput{NetworkInterfaces: make([]ec2types.NetworkInterface, 7)}, nil
}

func (fakeEC2) DescribeSecurityGroups(context.Context, *ec2.DescribeSecurityGroupsInput, ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error) {
	return &ec2.DescribeSecurityGroupsOutput{SecurityGroups: make([]ec2types.SecurityGroup, 9)}, nil
}

func (fakeEC2) DescribeAddresses(context.Context, *ec2.DescribeAddressesInput, ...func(*ec2.Options)) (*ec2.DescribeAddressesOutput, error) {
	return &ec2.DescribeAddressesOutput{Addresses: make([]ec2types.Address, 1)}, nil
}

type fakeELB struct{}

func (fakeELB) DescribeLoadBalancers(context.Context, *elbv2.DescribeLoadBalancersInput, ...func(*elbv2.Options)) (*elbv2.DescribeLoadBalancersOutput, error) {
	return &elbv2.DescribeLoadBalancersOutput{LoadBalancers: []elbtypes.LoadBalancer{
		{Type: elbtypes.LoadBalancerTypeEnumApplication},
		{Type: elbtypes.LoadBalancerTypeEnumNetwork},
		{Type: elbtypes.LoadBalancerTypeEnumApplication},
	}}, nil
}

func (fakeELB) DescribeTargetGroups(context.Context, *elbv2.DescribeTargetGroupsInput, ...func(*elbv2.Options)) (*elbv2.DescribeTargetGroupsOutput, error) {
	return &elbv2.DescribeTargetGroupsOutput{TargetGroups: make([]elbtypes.TargetGroup, 5)}, nil
}

type fakeASG struct{}

func (fakeASG) DescribeAutoScalingGroups(context.Context, *autoscaling.DescribeAutoScalingGroupsInput, ...func(*autoscaling.Options)) (*autoscaling.DescribeAutoScalingGroupsOutput, error) {
	return &autoscaling.DescribeAutoScalingGroupsOutput{AutoScalingGroups: make([]asgtypes.AutoScalingGroup, 2)}, nil
}

type fakeEKS struct{}

func (fakeEKS) ListClusters(context.Context, *eks.ListClustersInput, ...func(*eks.Options)) (*eks.ListClustersOutput, error) {
	return &eks.ListClustersOutput{Clusters: []string{"prod", "dev"}}, nil
}

func newTestUsageReader() *UsageReader {
	return NewUsageReader(UsageAPIs{EC2: fakeEC2{}, ELB: fakeELB{}, AutoScaling: fakeASG{}, EKS: fakeEKS{}})
}

func TestUsageReader(t *testing.T) {
	r := newTestUsageReader()
	tests := []struct {
		service, code string
		want          float64
	}{
		{"ec2", "L-1216C47A", 5},
		{"ec2", "L-0263D0A3", 1},
		{"ebs", "L-7A658B76", 1.5},
		{"ebs", "L-D18FCD1D", 0},
		{"vpc", "L-F678F1CE", 4},
		{"vpc", "L-DF5E4CA3", 7},
		{"vpc", "L-E79EC296", 9},
		{"elasticloadbalancing", "L-53DA6B97", 2},
		{"elasticloadbalancing", "L-69A177A2", 1},
		{"elasticloadbalancing", "L-B22855CB", 5},
		{"autoscaling", "L-CDE20ADC", 2},
		{"eks", "L-1194D53C", 2},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got, err := r.Usage(context.Background(), tt.service, tt.code)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Len(t, r.QuotaCodes(), len(tests))
}

func TestUsageReader_Unsupported(t *testing.T) {
	r := newTestUsageReader()

	_, ok := r.Supports("L-NOPE")
	assert.False(t, ok)
	service, ok := r.Supports("L-CDE20ADC")
	assert.True(t, ok)
	assert.Equal(t, "autoscaling", service)

	_, err := r.Usage(context.Background(), "ec2", "L-NOPE")
	assert.Error(t, err)
	_, err = r.Usage(context.Background(), "vpc", "L-1216C47A")
	assert.ErrorContains(t, err, "belongs to ec2")
}
