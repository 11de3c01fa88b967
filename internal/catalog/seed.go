package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"gopkg.in/yaml.v3"
)

// ObjectGetter is the slice of the S3 API the seed loader needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type seedFile struct {
	Products []seedProduct `yaml:"products"`
}

type seedProduct struct {
	ID          string  `yaml:"id"`
	Name        string  `yaml:"name"`
	GenericName string  `yaml:"genericName"`
	Form        string  `yaml:"form"`
	PackSize    string  `yaml:"packSize"`
	Description string  `yaml:"description"`
	Price       float64 `yaml:"price"`
	Stock       int     `yaml:"stock"`
	Status      string  `yaml:"status"`
}

// LoadSeed reads a YAML (or JSON) catalog from a local path or an s3://bucket/key
// URI. getter may be nil when path is local.
func LoadSeed(ctx context.Context, path string, getter ObjectGetter) ([]Product, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("catalog: seed path required")
	}

	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(path, "s3://") {
		data, err = readS3(ctx, path, getter)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: read seed %s: %w", path, err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes seed bytes into products, validating ids and prices.
func ParseSeed(data []byte) ([]Product, error) {
	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("catalog: decode seed: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Products))
	out := make([]Product, 0, len(file.Products))
	for i, sp := range file.Products {
		id := strings.TrimSpace(sp.ID)
		name := strings.TrimSpace(sp.Name)
		if id == "" || name == "" {
			return nil, fmt.Errorf("catalog: seed product %d: id and name required", i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("catalog: seed product %d: duplicate id %q", i, id)
		}
		seen[id] = struct{}{}
		if sp.Price < 0 || sp.Stock < 0 {
			return nil, fmt.Errorf("catalog: seed product %q: negative price or stock", id)
		}
		status, err := ParseStatus(sp.Status)
		if err != nil {
			return nil, fmt.Errorf("catalog: seed product %q: %w", id, err)
		}
		out = append(out, Product{
			ID:          id,
			Name:        name,
			GenericName: strings.TrimSpace(sp.GenericName),
			Form:        strings.TrimSpace(sp.Form),
			PackSize:    strings.TrimSpace(sp.PackSize),
			Description: strings.TrimSpace(sp.Description),
			Price:       MoneyFromFloat(sp.Price),
			Stock:       sp.Stock,
			Status:      status,
		})
	}
	return out, nil
}

func readS3(ctx context.Context, uri string, getter ObjectGetter) ([]byte, error) {
	if getter == nil {
		return nil, errors.New("s3 client not configured")
	}
	bucket, key, ok := strings.Cut(strings.TrimPrefix(uri, "s3://"), "/")
	if !ok || bucket == "" || key == "" {
		return nil, fmt.Errorf("invalid s3 uri %q", uri)
	}
	out, err := getter.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}
