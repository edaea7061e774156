package awsec2

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/google/uuid"

	"github.com/openberth/openberth/pkg/engine"
	"github.com/openberth/openberth/pkg/mapper"
	"github.com/openberth/openberth/pkg/providers/retry"
)

// ID is the provider id the plug-in registers under.
const ID = "aws"

// Config is the deployment target configuration for one application.
type Config struct {
	// Region is the AWS region instances are launched in.
	Region string `json:"region" validate:"required"`

	// InstanceType is the EC2 instance type ("t3.micro").
	InstanceType string `json:"instance_type" validate:"required"`

	// AMI pins an explicit image id. One of AMI or AMIFilter must be set.
	AMI string `json:"ami,omitempty"`

	// AMIFilter is a name filter ("ubuntu/images/*22.04*"); the newest
	// matching available image is used.
	AMIFilter string `json:"ami_filter,omitempty"`

	// KeyName is the EC2 key pair installed on the instance.
	KeyName string `json:"key_name,omitempty"`

	// SecurityGroupIDs attach the listed security groups.
	SecurityGroupIDs []string `json:"security_group_ids,omitempty"`

	// SubnetID places the instance in a specific subnet.
	SubnetID string `json:"subnet_id,omitempty"`

	// Tags are applied to the instance at launch.
	Tags map[string]string `json:"tags,omitempty"`

	// AccessKeyID and SecretAccessKey override the ambient credentials
	// for this application's calls.
	AccessKeyID     string `json:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty"`
}

// Ref identifies a deployed instance. Instance ids are region-scoped, so
// the region rides along for getInfo and destroy calls.
type Ref struct {
	InstanceID string `json:"instanceId"`
	Region     string `json:"region,omitempty"`
}

// Provider implements engine.Provider over the EC2 API.
type Provider struct {
	client EC2Client
	policy retry.Policy
}

// New creates a provider around client with the default retry policy.
func New(client EC2Client) *Provider {
	policy := retry.DefaultPolicy()
	policy.Retryable = isRetryable
	policy.Throttled = isThrottled
	return &Provider{
		client: client,
		policy: policy,
	}
}

// ConfigMapper returns the mapper validating raw provider configuration.
// The image rule is cross-field, so it lives in the transform.
func ConfigMapper() mapper.Mapper[Config] {
	return mapper.MustNew(configSchema, func(_ context.Context, in Config) (Config, error) {
		if in.AMI == "" && in.AMIFilter == "" {
			return Config{}, &mapper.TransformError{Message: "either ami or ami_filter must be set"}
		}
		if in.AccessKeyID != "" && in.SecretAccessKey == "" {
			return Config{}, &mapper.TransformError{Message: "access_key_id requires secret_access_key"}
		}
		return in, nil
	})
}

// RefMapper returns the mapper revalidating persisted references.
func RefMapper() mapper.Mapper[Ref] {
	return mapper.MustNew(refSchema, func(_ context.Context, in Ref) (Ref, error) {
		return in, nil
	})
}

// NewAdapter wraps the provider in the registry's type-erased surface.
func NewAdapter(p *Provider) engine.ProviderAdapter {
	return engine.NewAdapter[Config, Ref](ID, p, ConfigMapper(), RefMapper())
}

// Deploy launches one instance with the bootstrap payload as user data.
func (p *Provider) Deploy(ctx context.Context, cfg Config, payload engine.InstancePayload) (engine.Instance[Ref], error) {
	opts := callOptions(cfg.Region, cfg.AccessKeyID, cfg.SecretAccessKey)

	imageID := cfg.AMI
	if imageID == "" {
		resolved, err := p.resolveImage(ctx, cfg.AMIFilter, opts)
		if err != nil {
			return engine.Instance[Ref]{}, err
		}
		imageID = resolved
	}

	input := &ec2.RunInstancesInput{
		ImageId:      awsv2.String(imageID),
		InstanceType: ec2types.InstanceType(cfg.InstanceType),
		MinCount:     awsv2.Int32(1),
		MaxCount:     awsv2.Int32(1),
		UserData:     awsv2.String(base64.StdEncoding.EncodeToString([]byte(payload))),

		// The token makes RunInstances idempotent across retries
		ClientToken: awsv2.String(uuid.New().String()),
	}
	if cfg.KeyName != "" {
		input.KeyName = awsv2.String(cfg.KeyName)
	}
	if cfg.SubnetID != "" {
		input.SubnetId = awsv2.String(cfg.SubnetID)
	}
	if len(cfg.SecurityGroupIDs) > 0 {
		input.SecurityGroupIds = cfg.SecurityGroupIDs
	}
	if len(cfg.Tags) > 0 {
		input.TagSpecifications = []ec2types.TagSpecification{
			{
				ResourceType: ec2types.ResourceTypeInstance,
				Tags:         toTags(cfg.Tags),
			},
		}
	}

	var out *ec2.RunInstancesOutput
	err := retry.Do(ctx, p.policy, func(ctx context.Context) error {
		var callErr error
		out, callErr = p.client.RunInstances(ctx, input, opts...)
		return callErr
	})
	if err != nil {
		return engine.Instance[Ref]{}, fmt.Errorf("failed to run instance: %w", err)
	}
	if len(out.Instances) == 0 {
		return engine.Instance[Ref]{}, fmt.Errorf("run instances returned no instance")
	}

	return engine.Instance[Ref]{
		Status: engine.InstanceStatusStarting,
		Ref: Ref{
			InstanceID: awsv2.ToString(out.Instances[0].InstanceId),
			Region:     cfg.Region,
		},
	}, nil
}

// GetInfo reports the instance state. An instance EC2 no longer knows is
// reported as destroyed, not as an error.
func (p *Provider) GetInfo(ctx context.Context, ref Ref) (engine.Instance[Ref], error) {
	opts := callOptions(ref.Region, "", "")
	input := &ec2.DescribeInstancesInput{
		InstanceIds: []string{ref.InstanceID},
	}

	var out *ec2.DescribeInstancesOutput
	err := retry.Do(ctx, p.policy, func(ctx context.Context) error {
		var callErr error
		out, callErr = p.client.DescribeInstances(ctx, input, opts...)
		return callErr
	})
	if err != nil {
		if isNotFound(err) {
			return engine.Instance[Ref]{Status: engine.InstanceStatusDestroyed, Ref: ref}, nil
		}
		return engine.Instance[Ref]{}, fmt.Errorf("failed to describe instance %s: %w", ref.InstanceID, err)
	}

	if len(out.Reservations) == 0 || len(out.Reservations[0].Instances) == 0 {
		return engine.Instance[Ref]{Status: engine.InstanceStatusDestroyed, Ref: ref}, nil
	}

	inst := out.Reservations[0].Instances[0]
	status := engine.InstanceStatusErrored
	if inst.State != nil {
		status = mapState(inst.State.Name)
	}

	return engine.Instance[Ref]{Status: status, Ref: ref}, nil
}

// Destroy terminates the instance. Termination of an unknown instance is
// not an error.
func (p *Provider) Destroy(ctx context.Context, ref Ref) error {
	opts := callOptions(ref.Region, "", "")
	input := &ec2.TerminateInstancesInput{
		InstanceIds: []string{ref.InstanceID},
	}

	err := retry.Do(ctx, p.policy, func(ctx context.Context) error {
		_, callErr := p.client.TerminateInstances(ctx, input, opts...)
		return callErr
	})
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to terminate instance %s: %w", ref.InstanceID, err)
	}

	return nil
}

// resolveImage picks the newest available image matching the name filter.
func (p *Provider) resolveImage(ctx context.Context, filter string, opts []func(*ec2.Options)) (string, error) {
	input := &ec2.DescribeImagesInput{
		Filters: []ec2types.Filter{
			{Name: awsv2.String("name"), Values: []string{filter}},
			{Name: awsv2.String("state"), Values: []string{"available"}},
		},
	}

	var out *ec2.DescribeImagesOutput
	err := retry.Do(ctx, p.policy, func(ctx context.Context) error {
		var callErr error
		out, callErr = p.client.DescribeImages(ctx, input, opts...)
		return callErr
	})
	if err != nil {
		return "", fmt.Errorf("failed to resolve image for filter %q: %w", filter, err)
	}
	if len(out.Images) == 0 {
		return "", fmt.Errorf("no available image matches filter %q", filter)
	}

	// CreationDate is RFC3339, so the lexical maximum is the newest
	newest := out.Images[0]
	for _, img := range out.Images[1:] {
		if awsv2.ToString(img.CreationDate) > awsv2.ToString(newest.CreationDate) {
			newest = img
		}
	}

	return awsv2.ToString(newest.ImageId), nil
}

// callOptions builds the per-call overrides carrying the application's
// region and optional static credentials.
func callOptions(region, accessKey, secretKey string) []func(*ec2.Options) {
	var opts []func(*ec2.Options)
	if region != "" {
		opts = append(opts, func(o *ec2.Options) { o.Region = region })
	}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, func(o *ec2.Options) {
			o.Credentials = credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")
		})
	}
	return opts
}

// mapState converts EC2 instance states into lifecycle statuses.
func mapState(state ec2types.InstanceStateName) engine.InstanceStatus {
	switch state {
	case ec2types.InstanceStateNamePending:
		return engine.InstanceStatusStarting
	case ec2types.InstanceStateNameRunning:
		return engine.InstanceStatusRunning
	case ec2types.InstanceStateNameShuttingDown, ec2types.InstanceStateNameStopping:
		return engine.InstanceStatusDestroying
	case ec2types.InstanceStateNameTerminated:
		return engine.InstanceStatusDestroyed
	default:
		return engine.InstanceStatusErrored
	}
}

func toTags(tags map[string]string) []ec2types.Tag {
	out := make([]ec2types.Tag, 0, len(tags))
	for k, v := range tags {
		out = append(out, ec2types.Tag{Key: awsv2.String(k), Value: awsv2.String(v)})
	}
	return out
}

// isNotFound matches the EC2 error codes for instances the backend no
// longer knows.
func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "InvalidInstanceID.NotFound")
}

// isThrottled matches EC2 request throttling responses.
func isThrottled(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "RequestLimitExceeded") || strings.Contains(msg, "Throttling")
}

// isRetryable treats throttling and EC2 availability errors as worth
// another attempt; validation and auth failures are not.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if isNotFound(err) {
		return false
	}
	if isThrottled(err) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "InternalError") ||
		strings.Contains(msg, "Unavailable") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "timeout")
}

const configSchema = `{
	"type": "object",
	"properties": {
		"region": {"type": "string", "minLength": 1},
		"instance_type": {"type": "string", "minLength": 1},
		"ami": {"type": "string"},
		"ami_filter": {"type": "string"},
		"key_name": {"type": "string"},
		"security_group_ids": {"type": "array", "items": {"type": "string"}},
		"subnet_id": {"type": "string"},
		"tags": {"type": "object", "additionalProperties": {"type": "string"}},
		"access_key_id": {"type": "string"},
		"secret_access_key": {"type": "string"}
	},
	"required": ["region", "instance_type"],
	"additionalProperties": false
}`

const refSchema = `{
	"type": "object",
	"properties": {
		"instanceId": {"type": "string", "minLength": 1},
		"region": {"type": "string"}
	},
	"required": ["instanceId"],
	"additionalProperties": false
}`
