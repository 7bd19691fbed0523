package storage

import (
	"context"
	"image"
	"image/color"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/carblend/internal/utils"
	"github.com/menta2k/carblend/pkg/processing"
	"github.com/menta2k/carblend/pkg/viewpoint"
)

func testImage() image.Image {
	return imaging.New(16, 16, color.NRGBA{10, 20, 30, 255})
}

func TestDirWriter(t *testing.T) {
	root := filepath.Join(t.TempDir(), "blended")
	w, err := NewDirWriter(root, "png", processing.NewProcessor(), nil)
	require.NoError(t, err)

	ctx := context.Background()
	path, err := w.Write(ctx, viewpoint.Left, "abc_03_blend_0.png", testImage())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "left", "abc_03_blend_0.png"), path)
	assert.True(t, utils.FileExists(path))

	_, err = w.Write(ctx, viewpoint.Other, "abc_03_detail_0.png", testImage())
	require.NoError(t, err)
	_, err = w.Write(ctx, viewpoint.Other, "abc_03_detail_1.png", testImage())
	require.NoError(t, err)

	assert.Equal(t, map[viewpoint.Category]int{viewpoint.Left: 1, viewpoint.Other: 2}, w.Counts())

	img, err := processing.NewProcessor().LoadRaster(path)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(16, 16), img.Bounds().Size())
}

func TestDirWriterRejectsUnknown(t *testing.T) {
	w, err := NewDirWriter(t.TempDir(), "jpg", nil, nil)
	require.NoError(t, err)

	_, err = w.Write(context.Background(), viewpoint.Unknown, "x.jpg", testImage())
	assert.Error(t, err)
	_, err = w.Write(context.Background(), "sideways", "x.jpg", testImage())
	assert.Error(t, err)
	assert.Empty(t, w.Counts())
}

func TestDirWriterCancelled(t *testing.T) {
	w, err := NewDirWriter(t.TempDir(), "jpg", nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = w.Write(ctx, viewpoint.Front, "x.jpg", testImage())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDirWriterConcurrent(t *testing.T) {
	w, err := NewDirWriter(t.TempDir(), "jpg", nil, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := utils.GenerateOutputFilename("car_01.jpg", "blend", i, "jpg")
			_, err := w.Write(context.Background(), viewpoint.Front, name, testImage())
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8, w.Counts()[viewpoint.Front])
}

func TestWriteFile(t *testing.T) {
	root := t.TempDir()
	w, err := NewDirWriter(root, "png", nil, nil)
	require.NoError(t, err)

	path, err := w.WriteFile(filepath.Join("debug", "front", "a.png"), testImage())
	require.NoError(t, err)
	assert.True(t, utils.FileExists(path))
	assert.Empty(t, w.Counts())
}

func TestNewDirWriterCreatesEveryCategory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "blended")
	_, err := NewDirWriter(root, "jpg", nil, nil)
	require.NoError(t, err)

	for _, category := range viewpoint.OutputCategories() {
		assert.True(t, utils.DirExists(filepath.Join(root, string(category))), category)
	}
	assert.False(t, utils.DirExists(filepath.Join(root, string(viewpoint.Unknown))))
}

type fakeUploader struct {
	mu   sync.Mutex
	keys map[string]int
}

func (f *fakeUploader) Upload(in *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	return f.UploadWithContext(context.Background(), in, opts...)
}

func (f *fakeUploader) UploadWithContext(_ aws.Context, in *s3manager.UploadInput, _ ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keys == nil {
		f.keys = make(map[string]int)
	}
	f.keys[aws.StringValue(in.Bucket)+"/"+aws.StringValue(in.Key)] = len(data)
	return &s3manager.UploadOutput{}, nil
}

func TestS3Writer(t *testing.T) {
	local, err := NewDirWriter(t.TempDir(), "jpg", nil, nil)
	require.NoError(t, err)

	up := &fakeUploader{}
	w := NewS3WriterWithUploader(local, "datasets", "cars/run1", up)

	path, err := w.Write(context.Background(), viewpoint.BackRight, "abc_11_blend_0.jpg", testImage())
	require.NoError(t, err)
	assert.True(t, utils.FileExists(path))
	assert.Equal(t, "cars/run1/back-right/abc_11_blend_0.jpg", w.Key(viewpoint.BackRight, "abc_11_blend_0.jpg"))

	require.Contains(t, up.keys, "datasets/cars/run1/back-right/abc_11_blend_0.jpg")
	assert.Positive(t, up.keys["datasets/cars/run1/back-right/abc_11_blend_0.jpg"])
	assert.Equal(t, 1, w.Counts()[viewpoint.BackRight])

	report, err := local.WriteFile("report.png", testImage())
	require.NoError(t, err)
	require.NoError(t, w.UploadFile(context.Background(), report))
	assert.Contains(t, up.keys, "datasets/cars/run1/report.png")
}

func TestNewS3WriterNeedsBucket(t *testing.T) {
	local, err := NewDirWriter(t.TempDir(), "jpg", nil, nil)
	require.NoError(t, err)

	_, err = NewS3Writer(local, "", "", "")
	assert.Error(t, err)
}
