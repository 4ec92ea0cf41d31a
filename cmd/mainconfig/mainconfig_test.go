package mainconfig

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	appconfig "github.com/previmed/visit-assistant/internal/config"
)

func TestLoadAWSConfigStaticCredentialsAndEndpoint(t *testing.T) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	cfg := &appconfig.Config{
		AWSRegion:           "us-east-1",
		AWSAccessKeyID:      "test",
		AWSSecretAccessKey:  "secret",
		AWSEndpointOverride: "http://localhost:4566",
	}

	awsCfg, err := LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if awsCfg.Region != "us-east-1" {
		t.Fatalf("expected region us-east-1, got %s", awsCfg.Region)
	}
	if awsCfg.RetryMaxAttempts != awsRetryAttempts {
		t.Fatalf("expected %d retry attempts, got %d", awsRetryAttempts, awsCfg.RetryMaxAttempts)
	}

	creds, err := awsCfg.Credentials.Retrieve(context.Background())
	if err != nil {
		t.Fatalf("retrieve credentials: %v", err)
	}
	if creds.AccessKeyID != "test" || creds.SecretAccessKey != "secret" {
		t.Fatalf("expected static credentials, got %q", creds.AccessKeyID)
	}

	for _, service := range []string{bedrockruntime.ServiceID, sesv2.ServiceID} {
		endpoint, err := awsCfg.EndpointResolverWithOptions.ResolveEndpoint(service, "us-east-1")
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", service, err)
		}
		if endpoint.URL != "http://localhost:4566" || !endpoint.HostnameImmutable {
			t.Fatalf("%s: expected override endpoint, got %s", service, endpoint.URL)
		}
	}
	if _, err := awsCfg.EndpointResolverWithOptions.ResolveEndpoint("S3", "us-east-1"); err == nil {
		t.Fatalf("expected other services to use default resolution")
	}
}
