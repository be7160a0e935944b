package ner

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/comprehend"
	"github.com/aws/aws-sdk-go-v2/service/comprehend/types"
)

// ComprehendClient adapts AWS Comprehend's PII APIs to the Client
// interface. The underlying SDK client is safe for concurrent use.
type ComprehendClient struct {
	api *comprehend.Client
}

// NewComprehendClient loads the default AWS credential chain and returns a
// Comprehend-backed client for the given region.
func NewComprehendClient(ctx context.Context, region string) (*ComprehendClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &ComprehendClient{api: comprehend.NewFromConfig(cfg)}, nil
}

func (c *ComprehendClient) ContainsPII(ctx context.Context, text, language string) ([]string, error) {
	out, err := c.api.ContainsPiiEntities(ctx, &comprehend.ContainsPiiEntitiesInput{
		Text:         aws.String(text),
		LanguageCode: types.LanguageCode(language),
	})
	if err != nil {
		return nil, err
	}
	labels := make([]string, 0, len(out.Labels))
	for _, l := range out.Labels {
		labels = append(labels, string(l.Name))
	}
	return labels, nil
}

func (c *ComprehendClient) DetectPII(ctx context.Context, text, language string) ([]Entity, error) {
	out, err := c.api.DetectPiiEntities(ctx, &comprehend.DetectPiiEntitiesInput{
		Text:         aws.String(text),
		LanguageCode: types.LanguageCode(language),
	})
	if err != nil {
		return nil, err
	}
	entities := make([]Entity, 0, len(out.Entities))
	for _, e := range out.Entities {
		entities = append(entities, Entity{
			Type:        string(e.Type),
			BeginOffset: int(aws.ToInt32(e.BeginOffset)),
			EndOffset:   int(aws.ToInt32(e.EndOffset)),
		})
	}
	return entities, nil
}
