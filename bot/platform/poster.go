package platform

import (
	"context"
	"fmt"
)

// PostContent is a status with a single image attachment.
type PostContent struct {
	Text  string
	Image []byte
	// Path is the saved image file. When set, the attachment is uploaded from
	// it so that its name and extension reach the server.
	Path        string
	Description string
	Visibility  string
	Sensitive   bool
	SpoilerText string
}

// PostResult identifies the created status.
type PostResult struct {
	ID  string
	URI string
	URL string
}

// Poster publishes statuses to a social platform
type Poster interface {
	// Platform returns the name of the platform.
	Platform() string

	// Post uploads the image and publishes the status.
	Post(ctx context.Context, content PostContent) (*PostResult, error)

	// ValidateCredentials checks that the credentials are accepted.
	ValidateCredentials(ctx context.Context) error
}

// Stage names the step of a post that failed.
type Stage string

const (
	StageUpload Stage = "upload"
	StageStatus Stage = "status"
)

// PostError is returned by Post when the platform rejects a request.
type PostError struct {
	Stage Stage
	Err   error
}

func (e *PostError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *PostError) Unwrap() error {
	return e.Err
}
