package metadata

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// Change types supported for a change proposal
const (
	ChangeTypeUpsert = "UPSERT"
	ChangeTypeDelete = "DELETE"
)

// Aspect names accepted by the ingestion endpoint
const (
	AspectDatasetProperties = "datasetProperties"
	AspectStatus            = "status"
	AspectDeprecation       = "deprecation"
	AspectGlobalTags        = "globalTags"
	AspectSubTypes          = "subTypes"
)

// ChangeProposal is a metadata change proposal targeting a single aspect of a
// single entity, in the shape emitted by ingestion pipelines
type ChangeProposal struct {
	EntityType string          `json:"entityType"`
	EntityURN  string          `json:"entityUrn"`
	ChangeType string          `json:"changeType"`
	AspectName string          `json:"aspectName"`
	Aspect     json.RawMessage `json:"aspect"`
}

// Validate checks a change proposal for internal consistency
func (p *ChangeProposal) Validate() error {
	if p.EntityURN == "" {
		return errors.New("entityUrn is required")
	}

	urnType, err := EntityType(p.EntityURN)
	if err != nil {
		return err
	}

	if p.EntityType == "" {
		p.EntityType = urnType
	} else if p.EntityType != urnType {
		return errors.Errorf("entityType %s doesn't match urn entity type %s", p.EntityType, urnType)
	}

	if p.ChangeType == "" {
		p.ChangeType = ChangeTypeUpsert
	}

	if p.ChangeType != ChangeTypeUpsert && p.ChangeType != ChangeTypeDelete {
		return errors.Errorf("unsupported changeType: %s", p.ChangeType)
	}

	switch p.AspectName {
	case AspectDatasetProperties, AspectStatus, AspectDeprecation, AspectGlobalTags, AspectSubTypes:
	default:
		return errors.Errorf("unsupported aspectName: %s", p.AspectName)
	}

	if p.ChangeType == ChangeTypeUpsert {
		if len(p.Aspect) == 0 {
			return errors.New("aspect payload is required for UPSERT")
		}

		if !gjson.ValidBytes(p.Aspect) {
			return errors.New("aspect payload is not valid JSON")
		}
	}

	return nil
}

// Apply applies the proposed aspect change to an entity metadata document
func (p *ChangeProposal) Apply(m *Metadata) error {
	if p.ChangeType == ChangeTypeDelete {
		return p.applyDelete(m)
	}

	switch p.AspectName {
	case AspectDatasetProperties:
		if name := gjson.GetBytes(p.Aspect, "name"); name.Exists() {
			m.Name = name.String()
		}

		if description := gjson.GetBytes(p.Aspect, "description"); description.Exists() {
			m.Description = description.String()
		}

		if props := gjson.GetBytes(p.Aspect, "customProperties"); props.Exists() {
			if m.CustomProperties == nil {
				m.CustomProperties = map[string]string{}
			}
			props.ForEach(func(key, value gjson.Result) bool {
				m.CustomProperties[key.String()] = value.String()
				return true
			})
		}
	case AspectStatus:
		removed := gjson.GetBytes(p.Aspect, "removed")
		if !removed.Exists() {
			return errors.New("status aspect requires a removed field")
		}
		m.Removed = removed.Bool()
	case AspectDeprecation:
		deprecated := gjson.GetBytes(p.Aspect, "deprecated")
		if !deprecated.Exists() {
			return errors.New("deprecation aspect requires a deprecated field")
		}

		d := Deprecation{
			Deprecated: deprecated.Bool(),
			Note:       gjson.GetBytes(p.Aspect, "note").String(),
			Actor:      gjson.GetBytes(p.Aspect, "actor").String(),
		}

		// decommissionTime comes across the wire in epoch milliseconds
		if dt := gjson.GetBytes(p.Aspect, "decommissionTime"); dt.Exists() && dt.Int() > 0 {
			t := time.UnixMilli(dt.Int()).UTC()
			d.DecommissionTime = &t
		}

		m.Deprecation = &d
	case AspectGlobalTags:
		tags := gjson.GetBytes(p.Aspect, "tags")
		if !tags.IsArray() {
			return errors.New("globalTags aspect requires a tags list")
		}

		m.Tags = []string{}
		var tagErr error
		tags.ForEach(func(_, value gjson.Result) bool {
			urn := value.Get("tag").String()
			if urn == "" {
				tagErr = errors.New("globalTags entry is missing a tag urn")
				return false
			}
			if _, err := TagNameFromURN(urn); err != nil {
				tagErr = err
				return false
			}
			m.Tags = append(m.Tags, urn)
			return true
		})
		if tagErr != nil {
			return tagErr
		}
	case AspectSubTypes:
		typeNames := gjson.GetBytes(p.Aspect, "typeNames")
		if !typeNames.IsArray() {
			return errors.New("subTypes aspect requires a typeNames list")
		}

		m.SubTypes = []string{}
		typeNames.ForEach(func(_, value gjson.Result) bool {
			m.SubTypes = append(m.SubTypes, value.String())
			return true
		})
	default:
		return errors.Errorf("unsupported aspectName: %s", p.AspectName)
	}

	return nil
}

func (p *ChangeProposal) applyDelete(m *Metadata) error {
	switch p.AspectName {
	case AspectDeprecation:
		m.Deprecation = nil
	case AspectGlobalTags:
		m.Tags = []string{}
	case AspectStatus:
		m.Removed = false
	case AspectSubTypes:
		m.SubTypes = []string{}
	default:
		return errors.Errorf("aspect %s cannot be deleted", p.AspectName)
	}

	return nil
}
