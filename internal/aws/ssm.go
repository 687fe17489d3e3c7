package aws

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

type SSMAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Parameters reads SSM parameters, decrypting secure strings.
type Parameters struct {
	api SSMAPI
}

func NewParameters(api SSMAPI) *Parameters {
	return &Parameters{api: api}
}

func (p *Parameters) Get(ctx context.Context, name string) (string, error) {
	return catch(ctx, "GetParameter", true, func() (string, error) {
		output, err := p.api.GetParameter(ctx, &ssm.GetParameterInput{
			Name:           aws.String(name),
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			return "", err
		}
		if output.Parameter == nil {
			return "", nil
		}
		return safeString(output.Parameter.Value), nil
	})
}

// GetList reads a StringList parameter. Blank elements are dropped.
func (p *Parameters) GetList(ctx context.Context, name string) ([]string, error) {
	v, err := p.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	var list []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			list = append(list, s)
		}
	}
	return list, nil
}
