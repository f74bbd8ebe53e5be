package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Course describes one course entry inside a request payload.
type Course struct {
	CourseCode       string `json:"courseCode"`
	DescriptiveTitle string `json:"descriptiveTitle,omitempty"`
	SectionCode      string `json:"sectionCode,omitempty"`
	Time             string `json:"time,omitempty"`
	Day              string `json:"day,omitempty"`
}

// RequestData is the submission-time payload snapshot persisted as JSONB.
// Its shape is a tagged union keyed by the owning request's type:
// add/add_with_exception/drop carry Courses, change carries OldCourses and
// NewCourses as positional pairs, change_year_level carries CurrentYearLevel.
type RequestData struct {
	Reason           string   `json:"reason,omitempty"`
	Courses          []Course `json:"courses,omitempty"`
	OldCourses       []Course `json:"oldCourses,omitempty"`
	NewCourses       []Course `json:"newCourses,omitempty"`
	CurrentYearLevel int      `json:"currentYearLevel,omitempty"`
}

// ValidateFor checks the payload shape against the declared request type.
func (d RequestData) ValidateFor(t RequestType) error {
	switch t {
	case RequestTypeAdd, RequestTypeAddWithException, RequestTypeDrop:
		if len(d.Courses) == 0 {
			return fmt.Errorf("type %s requires at least one course", t)
		}
		if len(d.OldCourses) > 0 || len(d.NewCourses) > 0 {
			return fmt.Errorf("type %s does not accept old/new course lists", t)
		}
	case RequestTypeChange:
		if len(d.OldCourses) == 0 || len(d.NewCourses) == 0 {
			return fmt.Errorf("type change requires old and new course lists")
		}
		if len(d.OldCourses) != len(d.NewCourses) {
			return fmt.Errorf("type change requires equal old and new course counts")
		}
		if len(d.Courses) > 0 {
			return fmt.Errorf("type change does not accept a flat course list")
		}
	case RequestTypeChangeYearLevel:
		if d.CurrentYearLevel < 1 || d.CurrentYearLevel > 5 {
			return fmt.Errorf("currentYearLevel must be between 1 and 5")
		}
		if d.Reason == "" {
			return fmt.Errorf("type change_year_level requires a reason")
		}
	default:
		return fmt.Errorf("unknown request type %q", t)
	}
	return nil
}

// Value marshals the payload to JSON for persistence.
func (d RequestData) Value() (driver.Value, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal request data: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the struct.
func (d *RequestData) Scan(value interface{}) error {
	if value == nil {
		*d = RequestData{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for RequestData", value)
	}
	if len(data) == 0 {
		*d = RequestData{}
		return nil
	}
	if err := json.Unmarshal(data, d); err != nil {
		return fmt.Errorf("unmarshal request data: %w", err)
	}
	return nil
}
