// internal/infra/aws/params.go
package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

type ParameterClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Parameters reads plain configuration values from Parameter Store.
type Parameters struct {
	client ParameterClient
}

func NewParameters(client ParameterClient) *Parameters {
	return &Parameters{client: client}
}

func (p *Parameters) GetString(ctx context.Context, name string) (string, error) {
	out, err := p.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           sdkaws.String(name),
		WithDecryption: sdkaws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("get parameter %s: %w", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %s has no value", name)
	}
	return strings.TrimSpace(*out.Parameter.Value), nil
}

// GetIntList reads a list of integers stored either as a JSON array or as a
// comma separated string.
func (p *Parameters) GetIntList(ctx context.Context, name string) ([]int, error) {
	v, err := p.GetString(ctx, name)
	if err != nil {
		return nil, err
	}
	var out []int
	if strings.HasPrefix(v, "[") {
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, fmt.Errorf("parameter %s: %w", name, err)
		}
		return out, nil
	}
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var n int
		if _, err := fmt.Sscan(part, &n); err != nil {
			return nil, fmt.Errorf("parameter %s: %q is not an integer", name, part)
		}
		out = append(out, n)
	}
	return out, nil
}
