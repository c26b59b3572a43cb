package model

// UsageRecord is one observation of a resource's consumption of a limit.
// It is immutable once constructed.
type UsageRecord struct {
	value        float64
	resourceID   string
	resourceType string
	id           string
}

// UsageOption configures optional UsageRecord fields.
type UsageOption func(*UsageRecord)

// WithResourceID identifies the sub-resource the usage was measured on,
// e.g. a repository name.
func WithResourceID(id string) UsageOption {
	return func(u *UsageRecord) {
		u.resourceID = id
	}
}

// WithResourceType tags the kind of entity measured, e.g. "AWS::ECR::Repository".
func WithResourceType(t string) UsageOption {
	return func(u *UsageRecord) {
		u.resourceType = t
	}
}

// WithID sets an optional unique identifier.
func WithID(id string) UsageOption {
	return func(u *UsageRecord) {
		u.id = id
	}
}

// NewUsageRecord builds a record for value.
func NewUsageRecord(value float64, opts ...UsageOption) UsageRecord {
	u := UsageRecord{value: value}
	for _, opt := range opts {
		opt(&u)
	}
	return u
}

func (u UsageRecord) Value() float64       { return u.value }
func (u UsageRecord) ResourceID() string   { return u.resourceID }
func (u UsageRecord) ResourceType() string { return u.resourceType }
func (u UsageRecord) ID() string           { return u.id }
