package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/fundingfarm/fundingbot/internal/domain"
)

// Archiver implements domain.SnapshotArchiver by writing each completed scan
// as a JSON object keyed by completion date and scan id.
type Archiver struct {
	client *Client
	prefix string
}

var _ domain.SnapshotArchiver = (*Archiver)(nil)

// NewArchiver creates an Archiver. An empty prefix defaults to "scans".
func NewArchiver(c *Client, prefix string) *Archiver {
	if prefix == "" {
		prefix = "scans"
	}
	return &Archiver{client: c, prefix: prefix}
}

// ArchiveScan uploads the scan as prefix/YYYY/MM/DD/<id>.json.
func (a *Archiver) ArchiveScan(ctx context.Context, scan domain.ScanResult) error {
	body, err := json.Marshal(scan)
	if err != nil {
		return fmt.Errorf("s3blob: marshal scan %s: %w", scan.ID, err)
	}

	key := fmt.Sprintf("%s/%s/%s.json", a.prefix, scan.CompletedAt.UTC().Format("2006/01/02"), scan.ID)
	_, err = a.client.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.client.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put scan %s: %w", key, err)
	}
	return nil
}
