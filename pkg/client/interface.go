package client

import (
	"context"

	"github.com/sephiroth74/photoframe-processor/pkg/types"
)

// VisionClient is a vision model backend able to locate people in an image
type VisionClient interface {
	LocatePeople(ctx context.Context, model, prompt, imgB64 string) (*types.PeopleAnalysis, error)
}
