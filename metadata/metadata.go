package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// Metadata is the structure of an entity metadata document
type Metadata struct {
	URN              string            `json:"urn"`
	EntityType       string            `json:"entity_type"`
	Name             string            `json:"name"`
	Platform         string            `json:"platform"`
	Env              string            `json:"env"`
	Description      string            `json:"description"`
	SubTypes         []string          `json:"sub_types"`
	BrowsePaths      []string          `json:"browse_paths"`
	CustomProperties map[string]string `json:"custom_properties"`
	Tags             []string          `json:"tags"`
	Removed          bool              `json:"removed"`
	Deprecation      *Deprecation      `json:"deprecation"`
	CreatedAt        *time.Time        `json:"created_at"`
	CreatedBy        string            `json:"created_by"`
	ModifiedAt       *time.Time        `json:"modified_at"`
	ModifiedBy       string            `json:"modified_by"`
}

// Deprecation is the deprecation status of an entity
type Deprecation struct {
	Deprecated       bool       `json:"deprecated"`
	Note             string     `json:"note"`
	DecommissionTime *time.Time `json:"decommission_time"`
	Actor            string     `json:"actor"`
}

// UnmarshalJSON is a custom JSON unmarshaller for metadata
func (m *Metadata) UnmarshalJSON(j []byte) error {
	var rawStrings map[string]interface{}

	log.Debugf("unmarshalling metadata: %s", string(j))

	err := json.Unmarshal(j, &rawStrings)
	if err != nil {
		return err
	}

	if urn, ok := rawStrings["urn"]; ok {
		s, ok := urn.(string)
		if !ok {
			msg := fmt.Sprintf("urn is not a string: %+v", rawStrings["urn"])
			return errors.New(msg)
		}
		m.URN = s
	}

	if entityType, ok := rawStrings["entity_type"]; ok {
		s, ok := entityType.(string)
		if !ok {
			msg := fmt.Sprintf("entity_type is not a string: %+v", rawStrings["entity_type"])
			return errors.New(msg)
		}
		m.EntityType = s
	}

	if name, ok := rawStrings["name"]; ok {
		s, ok := name.(string)
		if !ok {
			msg := fmt.Sprintf("name is not a string: %+v", rawStrings["name"])
			return errors.New(msg)
		}
		m.Name = s
	}

	if platform, ok := rawStrings["platform"]; ok {
		s, ok := platform.(string)
		if !ok {
			msg := fmt.Sprintf("platform is not a string: %+v", rawStrings["platform"])
			return errors.New(msg)
		}
		m.Platform = s
	}

	if env, ok := rawStrings["env"]; ok {
		s, ok := env.(string)
		if !ok {
			msg := fmt.Sprintf("env is not a string: %+v", rawStrings["env"])
			return errors.New(msg)
		}
		m.Env = s
	}

	if desc, ok := rawStrings["description"]; ok {
		s, ok := desc.(string)
		if !ok {
			msg := fmt.Sprintf("description is not a string: %+v", rawStrings["description"])
			return errors.New(msg)
		}
		m.Description = s
	}

	if subTypes, ok := rawStrings["sub_types"]; ok {
		sts, err := toStringSlice("sub_types", subTypes)
		if err != nil {
			return err
		}
		m.SubTypes = sts
	}

	if browsePaths, ok := rawStrings["browse_paths"]; ok {
		bps, err := toStringSlice("browse_paths", browsePaths)
		if err != nil {
			return err
		}
		m.BrowsePaths = bps
	}

	if customProperties, ok := rawStrings["custom_properties"]; ok {
		if customProperties == nil {
			m.CustomProperties = map[string]string{}
		} else {
			cps, ok := customProperties.(map[string]interface{})
			if !ok {
				msg := fmt.Sprintf("custom_properties is not a map: %+v", rawStrings["custom_properties"])
				return errors.New(msg)
			}
			m.CustomProperties = map[string]string{}
			for k, iface := range cps {
				v, ok := iface.(string)
				if !ok {
					msg := fmt.Sprintf("custom property value is not a string: %+v", iface)
					return errors.New(msg)
				}
				m.CustomProperties[k] = v
			}
		}
	}

	if tags, ok := rawStrings["tags"]; ok {
		ts, err := toStringSlice("tags", tags)
		if err != nil {
			return err
		}
		m.Tags = ts
	}

	if removed, ok := rawStrings["removed"]; ok {
		b, ok := removed.(bool)
		if !ok {
			msg := fmt.Sprintf("removed is not a boolean: %+v", rawStrings["removed"])
			return errors.New(msg)
		}
		m.Removed = b
	}

	if deprecation, ok := rawStrings["deprecation"]; ok && deprecation != nil {
		dep, ok := deprecation.(map[string]interface{})
		if !ok {
			msg := fmt.Sprintf("deprecation is not a map: %+v", rawStrings["deprecation"])
			return errors.New(msg)
		}

		d := Deprecation{}

		if deprecated, ok := dep["deprecated"]; ok {
			b, ok := deprecated.(bool)
			if !ok {
				msg := fmt.Sprintf("deprecated is not a boolean: %+v", dep["deprecated"])
				return errors.New(msg)
			}
			d.Deprecated = b
		}

		if note, ok := dep["note"]; ok {
			s, ok := note.(string)
			if !ok {
				msg := fmt.Sprintf("deprecation note is not a string: %+v", dep["note"])
				return errors.New(msg)
			}
			d.Note = s
		}

		if decommissionTime, ok := dep["decommission_time"]; ok {
			dt, ok := decommissionTime.(string)
			if !ok {
				msg := fmt.Sprintf("decommission_time is not a string: %+v", dep["decommission_time"])
				return errors.New(msg)
			}
			if dt != "" {
				t, err := time.Parse(time.RFC3339, dt)
				if err != nil {
					msg := fmt.Sprintf("failed to parse decommission_time as time: %+v", dt)
					return errors.New(msg)
				}
				d.DecommissionTime = &t
			}
		}

		if actor, ok := dep["actor"]; ok {
			s, ok := actor.(string)
			if !ok {
				msg := fmt.Sprintf("deprecation actor is not a string: %+v", dep["actor"])
				return errors.New(msg)
			}
			d.Actor = s
		}

		m.Deprecation = &d
	}

	if createdAt, ok := rawStrings["created_at"]; ok {
		ca, ok := createdAt.(string)
		if !ok {
			msg := fmt.Sprintf("created_at is not a string: %+v", rawStrings["created_at"])
			return errors.New(msg)
		}
		if ca != "" {
			t, err := time.Parse(time.RFC3339, ca)
			if err != nil {
				msg := fmt.Sprintf("failed to parse created_at as time: %+v", t)
				return errors.New(msg)
			}
			m.CreatedAt = &t
		}
	}

	if createdBy, ok := rawStrings["created_by"]; ok {
		s, ok := createdBy.(string)
		if !ok {
			msg := fmt.Sprintf("created_by is not a string: %+v", rawStrings["created_by"])
			return errors.New(msg)
		}
		m.CreatedBy = s
	}

	if modifiedAt, ok := rawStrings["modified_at"]; ok {
		ma, ok := modifiedAt.(string)
		if !ok {
			msg := fmt.Sprintf("modified_at is not a string: %+v", rawStrings["modified_at"])
			return errors.New(msg)
		}
		if ma != "" {
			t, err := time.Parse(time.RFC3339, ma)
			if err != nil {
				msg := fmt.Sprintf("failed to parse modified_at as time: %+v", t)
				return errors.New(msg)
			}
			m.ModifiedAt = &t
		}
	}

	if modifiedBy, ok := rawStrings["modified_by"]; ok {
		s, ok := modifiedBy.(string)
		if !ok {
			msg := fmt.Sprintf("modified_by is not a string: %+v", rawStrings["modified_by"])
			return errors.New(msg)
		}
		m.ModifiedBy = s
	}

	return nil
}

// toStringSlice converts a decoded JSON list into a slice of strings
func toStringSlice(field string, value interface{}) ([]string, error) {
	if value == nil {
		return []string{}, nil
	}

	ifaces, ok := value.([]interface{})
	if !ok {
		msg := fmt.Sprintf("%s is not a []interface{}: %+v", field, value)
		return nil, errors.New(msg)
	}

	out := []string{}
	for _, iface := range ifaces {
		s, ok := iface.(string)
		if !ok {
			msg := fmt.Sprintf("%s value is not a string: %+v", field, iface)
			return nil, errors.New(msg)
		}
		out = append(out, s)
	}

	return out, nil
}

type deprecationOutput struct {
	Deprecated       bool   `json:"deprecated"`
	Note             string `json:"note"`
	DecommissionTime string `json:"decommission_time"`
	Actor            string `json:"actor"`
}

// MarshalJSON is a custom JSON marshaller for metadata
func (m Metadata) MarshalJSON() ([]byte, error) {
	createdAt := ""
	if m.CreatedAt != nil {
		createdAt = m.CreatedAt.Format(time.RFC3339)
	}

	modifiedAt := ""
	if m.ModifiedAt != nil {
		modifiedAt = m.ModifiedAt.Format(time.RFC3339)
	}

	var deprecation *deprecationOutput
	if m.Deprecation != nil {
		decommissionTime := ""
		if m.Deprecation.DecommissionTime != nil {
			decommissionTime = m.Deprecation.DecommissionTime.Format(time.RFC3339)
		}

		deprecation = &deprecationOutput{
			Deprecated:       m.Deprecation.Deprecated,
			Note:             m.Deprecation.Note,
			DecommissionTime: decommissionTime,
			Actor:            m.Deprecation.Actor,
		}
	}

	metadata := struct {
		URN              string             `json:"urn"`
		EntityType       string             `json:"entity_type"`
		Name             string             `json:"name"`
		Platform         string             `json:"platform"`
		Env              string             `json:"env"`
		Description      string             `json:"description"`
		SubTypes         []string           `json:"sub_types"`
		BrowsePaths      []string           `json:"browse_paths"`
		CustomProperties map[string]string  `json:"custom_properties"`
		Tags             []string           `json:"tags"`
		Removed          bool               `json:"removed"`
		Deprecation      *deprecationOutput `json:"deprecation,omitempty"`
		CreatedAt        string             `json:"created_at"`
		CreatedBy        string             `json:"created_by"`
		ModifiedAt       string             `json:"modified_at"`
		ModifiedBy       string             `json:"modified_by"`
	}{
		URN:              m.URN,
		EntityType:       m.EntityType,
		Name:             m.Name,
		Platform:         m.Platform,
		Env:              m.Env,
		Description:      m.Description,
		SubTypes:         m.SubTypes,
		BrowsePaths:      m.BrowsePaths,
		CustomProperties: m.CustomProperties,
		Tags:             m.Tags,
		Removed:          m.Removed,
		Deprecation:      deprecation,
		CreatedAt:        createdAt,
		CreatedBy:        m.CreatedBy,
		ModifiedAt:       modifiedAt,
		ModifiedBy:       m.ModifiedBy,
	}

	return json.Marshal(metadata)
}
