package internal

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"os"

	"github.com/gen2brain/webp"
	"go.uber.org/zap"

	// Decoders for the supported source formats.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "github.com/biessek/golang-ico"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// ConvertOptions carries the per-run settings the converter needs.
type ConvertOptions struct {
	Quality     int  // 0-100
	Method      int  // encoder effort, 6 is the slowest/best
	UseExifTool bool // fall back to the exiftool binary when native extraction finds nothing
}

// ConvertImage converts one source image to WebP at dst, carrying over ICC
// profile, sanitized EXIF and XMP, backdating the output file to the capture
// time and writing the metadata backup sidecar.
//
// Only decode, encode and output-write failures are fatal for the file; every
// metadata step degrades gracefully on its own.
func ConvertImage(src, dst string, opts ConvertOptions) ConversionResult {
	result := ConversionResult{Source: src, Output: dst}

	if info, err := os.Stat(src); err == nil {
		result.OriginalSize = info.Size()
	}

	// Metadata first, so a decode failure later cannot cost us the chance to
	// report what the file contained.
	bundle := ExtractMetadata(src)
	if opts.UseExifTool && !bundle.HasExif() {
		EnrichWithExifTool(bundle, src)
	}

	sanitized := SanitizeExif(bundle.Exif)
	bundle.Exif = sanitized // the backup records what actually survived
	timestamp := ResolveTimestamp(sanitized)
	result.Timestamp = timestamp

	img, err := decodeImage(src)
	if err != nil {
		result.Err = err
		return result
	}

	normalized := normalizeColorModel(img)
	bounds := normalized.Bounds()

	var encoded bytes.Buffer
	err = webp.Encode(&encoded, normalized, webp.Options{
		Quality: opts.Quality,
		Method:  opts.Method,
	})
	if err != nil {
		result.Err = fmt.Errorf("webp encode: %w", err)
		return result
	}

	var exifBlob []byte
	if sanitized != nil {
		exifBlob, err = BuildExif(sanitized)
		if err != nil {
			// Conversion proceeds without EXIF rather than aborting.
			Log.Warn("cannot serialize exif for embedding",
				zap.String("file", src), zap.Error(err))
			exifBlob = nil
		}
	}

	output := encoded.Bytes()
	if len(bundle.ICCProfile) > 0 || len(exifBlob) > 0 || len(bundle.XMP) > 0 {
		muxed, err := EmbedWebPMetadata(output, bundle.ICCProfile, exifBlob, bundle.XMP,
			bounds.Dx(), bounds.Dy())
		if err != nil {
			Log.Warn("cannot embed metadata chunks, writing bare image",
				zap.String("file", src), zap.Error(err))
		} else {
			output = muxed
		}
	}

	if err := writeFileAtomic(dst, output); err != nil {
		result.Err = fmt.Errorf("write output: %w", err)
		return result
	}
	result.OutputSize = int64(len(output))

	ApplyTimestamp(dst, timestamp)

	if err := WriteMetadataBackup(src, dst, bundle, timestamp); err != nil {
		Log.Error("metadata backup failed", zap.String("file", src), zap.Error(err))
	}

	return result
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// normalizeColorModel prepares an image for lossy re-encoding: anything
// carrying alpha becomes full NRGBA, palette images expand to NRGBA or
// opaque RGBA depending on palette transparency, and every other color model
// flattens to opaque RGBA. Images already in an RGB(A) model pass through.
func normalizeColorModel(img image.Image) image.Image {
	switch t := img.(type) {
	case *image.RGBA, *image.NRGBA:
		return img
	case *image.Paletted:
		if paletteHasTransparency(t) {
			return drawInto(image.NewNRGBA(t.Bounds()), img)
		}
		return drawInto(image.NewRGBA(t.Bounds()), img)
	case *image.NRGBA64, *image.RGBA64, *image.Alpha, *image.Alpha16:
		return drawInto(image.NewNRGBA(img.Bounds()), img)
	default:
		return drawInto(image.NewRGBA(img.Bounds()), img)
	}
}

func paletteHasTransparency(img *image.Paletted) bool {
	for _, c := range img.Palette {
		if _, _, _, a := c.RGBA(); a < 0xFFFF {
			return true
		}
	}
	return false
}

func drawInto(dst draw.Image, src image.Image) image.Image {
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	return dst
}

// writeFileAtomic writes via a temp file and rename so an interrupted run
// never leaves a half-written output in place.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
