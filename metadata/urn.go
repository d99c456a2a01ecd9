package metadata

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Entity types supported by the catalog
const (
	EntityTypeDataset = "dataset"
	EntityTypeTag     = "tag"
)

const (
	datasetURNPrefix  = "urn:li:dataset:"
	tagURNPrefix      = "urn:li:tag:"
	platformURNPrefix = "urn:li:dataPlatform:"
)

// DefaultEnv is the environment used when none is given
const DefaultEnv = "PROD"

var validEnvs = map[string]struct{}{
	"PROD":     {},
	"DEV":      {},
	"QA":       {},
	"UAT":      {},
	"EI":       {},
	"STG":      {},
	"NON_PROD": {},
	"CORP":     {},
	"TEST":     {},
}

// ValidEnv returns true if the given environment fabric is recognized
func ValidEnv(env string) bool {
	_, ok := validEnvs[env]
	return ok
}

// MakeDataPlatformURN builds a data platform urn from a platform name
func MakeDataPlatformURN(platform string) string {
	if strings.HasPrefix(platform, platformURNPrefix) {
		return platform
	}
	return platformURNPrefix + platform
}

// MakeDatasetURN builds a dataset urn from a platform, dataset name and environment fabric
func MakeDatasetURN(platform, name, env string) string {
	if env == "" {
		env = DefaultEnv
	}
	return fmt.Sprintf("%s(%s,%s,%s)", datasetURNPrefix, MakeDataPlatformURN(platform), name, env)
}

// MakeTagURN builds a tag urn from a tag name
func MakeTagURN(name string) string {
	if strings.HasPrefix(name, tagURNPrefix) {
		return name
	}
	return tagURNPrefix + name
}

// DatasetURN is the parsed form of a dataset urn
type DatasetURN struct {
	Platform string
	Name     string
	Env      string
}

// ParseDatasetURN parses a dataset urn of the form
// urn:li:dataset:(urn:li:dataPlatform:<platform>,<name>,<ENV>)
func ParseDatasetURN(urn string) (*DatasetURN, error) {
	if !strings.HasPrefix(urn, datasetURNPrefix) {
		return nil, errors.Errorf("not a dataset urn: %s", urn)
	}

	body := strings.TrimPrefix(urn, datasetURNPrefix)
	if !strings.HasPrefix(body, "(") || !strings.HasSuffix(body, ")") {
		return nil, errors.Errorf("malformed dataset urn: %s", urn)
	}
	body = strings.TrimSuffix(strings.TrimPrefix(body, "("), ")")

	parts := strings.Split(body, ",")
	if len(parts) != 3 {
		return nil, errors.Errorf("malformed dataset urn, expected 3 parts, got %d: %s", len(parts), urn)
	}

	platform := strings.TrimPrefix(parts[0], platformURNPrefix)
	if platform == parts[0] {
		return nil, errors.Errorf("malformed platform urn in dataset urn: %s", urn)
	}

	if parts[1] == "" {
		return nil, errors.Errorf("empty dataset name in urn: %s", urn)
	}

	if !ValidEnv(parts[2]) {
		return nil, errors.Errorf("invalid environment fabric %s in urn: %s", parts[2], urn)
	}

	return &DatasetURN{
		Platform: platform,
		Name:     parts[1],
		Env:      parts[2],
	}, nil
}

// TagNameFromURN returns the tag name for a tag urn
func TagNameFromURN(urn string) (string, error) {
	if !strings.HasPrefix(urn, tagURNPrefix) {
		return "", errors.Errorf("not a tag urn: %s", urn)
	}

	name := strings.TrimPrefix(urn, tagURNPrefix)
	if name == "" {
		return "", errors.Errorf("empty tag name in urn: %s", urn)
	}

	return name, nil
}

// EntityType determines the entity type for a urn
func EntityType(urn string) (string, error) {
	switch {
	case strings.HasPrefix(urn, datasetURNPrefix):
		return EntityTypeDataset, nil
	case strings.HasPrefix(urn, tagURNPrefix):
		return EntityTypeTag, nil
	default:
		return "", errors.Errorf("unsupported entity urn: %s", urn)
	}
}
