package meter

import (
	"sort"
	"strings"
)

// Meter is a live, mutable instrumentation object. Concrete shapes
// (Counter, Gauge, Timer, ...) expose shape-specific read accessors;
// Measure is the generic surface used for shapes the publish path does
// not recognize.
type Meter interface {
	ID() ID
	Measure() []Measurement
}

type Tag struct {
	Key   string
	Value string
}

// ID identifies a meter by name plus tag set. Tags are sorted by key
// at construction so equal tag sets produce equal keys.
type ID struct {
	Name        string
	Tags        []Tag
	Unit        string
	Description string
}

// Measurement is one generic statistic read from a meter snapshot.
type Measurement struct {
	Statistic string
	Value     float64
}

func NewTag(key string, value string) Tag {
	return Tag{Key: key, Value: value}
}

func NewID(name string, tags ...Tag) ID {
	sorted := make([]Tag, len(tags))
	copy(sorted, tags)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })
	return ID{Name: name, Tags: sorted}
}

func (id ID) WithUnit(unit string) ID {
	id.Unit = unit
	return id
}

func (id ID) WithDescription(description string) ID {
	id.Description = description
	return id
}

// Key returns a stable string identity for registry storage.
func (id ID) Key() string {
	var sb strings.Builder
	sb.WriteString(id.Name)
	for _, tag := range id.Tags {
		sb.WriteString(";")
		sb.WriteString(tag.Key)
		sb.WriteString("=")
		sb.WriteString(tag.Value)
	}
	return sb.String()
}
