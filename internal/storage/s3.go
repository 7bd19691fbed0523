package storage

import (
	"context"
	"image"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/pkg/errors"

	"github.com/menta2k/carblend/pkg/viewpoint"
)

const defaultAwsRegion = `eu-west-2`

// S3Writer writes every image locally and mirrors it to an S3 bucket
// under <prefix>/<category>/<name>.
type S3Writer struct {
	*DirWriter

	Bucket string
	Prefix string

	uploader s3manageriface.UploaderAPI
}

// NewS3Writer sets up an aws session for region and wraps local
func NewS3Writer(local *DirWriter, bucket, prefix, region string) (*S3Writer, error) {
	if bucket == "" {
		return nil, errors.New("no bucket given")
	}
	if region == "" {
		region = defaultAwsRegion
	}

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to set up aws session")
	}

	return NewS3WriterWithUploader(local, bucket, prefix, s3manager.NewUploader(sess)), nil
}

// NewS3WriterWithUploader wraps local with an existing uploader
func NewS3WriterWithUploader(local *DirWriter, bucket, prefix string, uploader s3manageriface.UploaderAPI) *S3Writer {
	return &S3Writer{
		DirWriter: local,
		Bucket:    bucket,
		Prefix:    prefix,
		uploader:  uploader,
	}
}

// Key returns the object key for a file in category
func (w *S3Writer) Key(category viewpoint.Category, name string) string {
	return path.Join(w.Prefix, string(category), name)
}

// Write saves img locally then uploads the resulting file
func (w *S3Writer) Write(ctx context.Context, category viewpoint.Category, name string, img image.Image) (string, error) {
	local, err := w.DirWriter.Write(ctx, category, name, img)
	if err != nil {
		return "", err
	}

	key := w.Key(category, name)
	if err := w.upload(ctx, key, local); err != nil {
		return local, err
	}
	w.logger.Debug("uploaded image", "bucket", w.Bucket, "key", key)
	return local, nil
}

// UploadFile mirrors a file below the local root, keeping its relative path
func (w *S3Writer) UploadFile(ctx context.Context, local string) error {
	rel, err := filepath.Rel(w.Root(), local)
	if err != nil {
		return errors.Wrapf(err, "'%v' is not below the output directory", local)
	}
	return w.upload(ctx, path.Join(w.Prefix, filepath.ToSlash(rel)), local)
}

func (w *S3Writer) upload(ctx context.Context, key, local string) error {
	file, err := os.Open(local)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = w.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(w.Bucket),
		Key:    aws.String(key),
		Body:   file,
	})
	if err != nil {
		return errors.Wrapf(err, "could not upload '%v' to s3://%v/%v", local, w.Bucket, key)
	}
	return nil
}
