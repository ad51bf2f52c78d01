// Package ocsf holds the closed OCSF vocabularies every persisted audit
// event conforms to. Each value carries both its stable numeric code and
// its display name so the SIEM wire formats can emit either form.
package ocsf

// This service emits a single event class.
const (
	ClassUID  = 6003
	ClassName = "API Activity"

	SchemaVersion = "1.1.0"

	// SyslogFacility is local0, the conventional facility for
	// application-generated security logs.
	SyslogFacility = 16
)

// Category groups events by the part of the system they describe.
type Category int

const (
	CategoryApplication Category = iota + 1
	CategoryAuthentication
	CategoryAuthorization
	CategoryConfiguration
	CategoryDataAccess
	CategorySystem
)

var categoryNames = map[Category]string{
	CategoryApplication:    "application",
	CategoryAuthentication: "authentication",
	CategoryAuthorization:  "authorization",
	CategoryConfiguration:  "configuration",
	CategoryDataAccess:     "data_access",
	CategorySystem:         "system",
}

// String returns the category's wire name.
func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "unknown"
}

// UID returns the category's stable numeric code.
func (c Category) UID() int { return int(c) }

// Valid reports whether c is a member of the closed set.
func (c Category) Valid() bool {
	_, ok := categoryNames[c]
	return ok
}

// CategoryByName maps a wire name back to its Category. The boolean is
// false for names outside the vocabulary.
func CategoryByName(name string) (Category, bool) {
	for c, n := range categoryNames {
		if n == name {
			return c, true
		}
	}
	return 0, false
}

// Categories returns every defined category, ordered by code.
func Categories() []Category {
	return []Category{
		CategoryApplication,
		CategoryAuthentication,
		CategoryAuthorization,
		CategoryConfiguration,
		CategoryDataAccess,
		CategorySystem,
	}
}

// Activity identifies what the actor did.
type Activity int

const (
	ActivityCreate Activity = iota + 1
	ActivityRead
	ActivityUpdate
	ActivityDelete
	ActivityExecute
	ActivityDeny
	ActivityError
	ActivityAuthenticate
	ActivityAuthorize
)

var activityNames = map[Activity]string{
	ActivityCreate:       "create",
	ActivityRead:         "read",
	ActivityUpdate:       "update",
	ActivityDelete:       "delete",
	ActivityExecute:      "execute",
	ActivityDeny:         "deny",
	ActivityError:        "error",
	ActivityAuthenticate: "authenticate",
	ActivityAuthorize:    "authorize",
}

// String returns the activity's wire name.
func (a Activity) String() string {
	if name, ok := activityNames[a]; ok {
		return name
	}
	return "unknown"
}

// ID returns the activity's stable numeric code.
func (a Activity) ID() int { return int(a) }

// Valid reports whether a is a member of the closed set.
func (a Activity) Valid() bool {
	_, ok := activityNames[a]
	return ok
}

// ActivityByName maps a wire name back to its Activity.
func ActivityByName(name string) (Activity, bool) {
	for a, n := range activityNames {
		if n == name {
			return a, true
		}
	}
	return 0, false
}

// Activities returns every defined activity, ordered by code.
func Activities() []Activity {
	return []Activity{
		ActivityCreate,
		ActivityRead,
		ActivityUpdate,
		ActivityDelete,
		ActivityExecute,
		ActivityDeny,
		ActivityError,
		ActivityAuthenticate,
		ActivityAuthorize,
	}
}

// Severity ranks how serious an event is, 0 (unknown) through 5 (critical).
type Severity int

const (
	SeverityUnknown Severity = iota
	SeverityInformational
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = [...]string{
	SeverityUnknown:       "unknown",
	SeverityInformational: "informational",
	SeverityLow:           "low",
	SeverityMedium:        "medium",
	SeverityHigh:          "high",
	SeverityCritical:      "critical",
}

// String returns the severity's wire name.
func (s Severity) String() string {
	if s >= SeverityUnknown && int(s) < len(severityNames) {
		return severityNames[s]
	}
	return "unknown"
}

// Valid reports whether s is within the 0-5 range.
func (s Severity) Valid() bool {
	return s >= SeverityUnknown && s <= SeverityCritical
}

// syslogSeverities maps OCSF severity codes onto RFC 5424 severity values.
// Unknown and informational both land on informational(6); the scale then
// tightens one syslog level per OCSF step up to critical(2).
var syslogSeverities = [...]int{6, 6, 5, 4, 3, 2}

// SyslogSeverity returns the RFC 5424 severity value for s. Out-of-range
// severities fall back to informational.
func (s Severity) SyslogSeverity() int {
	if s >= SeverityUnknown && int(s) < len(syslogSeverities) {
		return syslogSeverities[s]
	}
	return 6
}

// SyslogPriority returns the full RFC 5424 PRI value (facility*8 + severity).
func (s Severity) SyslogPriority() int {
	return SyslogFacility*8 + s.SyslogSeverity()
}

// Status records the outcome of the audited operation.
type Status int

const (
	StatusUnknown Status = iota
	StatusSuccess
	StatusFailure
	StatusPartial
)

var statusNames = [...]string{
	StatusUnknown: "unknown",
	StatusSuccess: "success",
	StatusFailure: "failure",
	StatusPartial: "partial",
}

// String returns the status's wire name.
func (s Status) String() string {
	if s >= StatusUnknown && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown"
}

// Valid reports whether s is within the 0-3 range.
func (s Status) Valid() bool {
	return s >= StatusUnknown && s <= StatusPartial
}
