package fetch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

// Relay endpoint names. They double as cache data types.
const (
	EndpointFaculties          = "faculties"
	EndpointGroups             = "groups"
	EndpointCafedras           = "cafedras"
	EndpointInstructors        = "instructors"
	EndpointScheduleGroup      = "scheduleGroup"
	EndpointScheduleInstructor = "scheduleInstructor"
)

// Faculties lists all faculties.
func (o *Orchestrator) Faculties(ctx context.Context, opts Options) (json.RawMessage, error) {
	return o.Request(ctx, EndpointFaculties, url.Values{}, opts)
}

// Groups lists the groups of a faculty.
func (o *Orchestrator) Groups(ctx context.Context, facultyID string, opts Options) (json.RawMessage, error) {
	return o.Request(ctx, EndpointGroups, url.Values{"idFaculty": {facultyID}}, opts)
}

// Cafedras lists the departments of a faculty.
func (o *Orchestrator) Cafedras(ctx context.Context, facultyID string, opts Options) (json.RawMessage, error) {
	return o.Request(ctx, EndpointCafedras, url.Values{"idFaculty": {facultyID}}, opts)
}

// Instructors lists the instructors of a department.
func (o *Orchestrator) Instructors(ctx context.Context, cafedraID string, opts Options) (json.RawMessage, error) {
	return o.Request(ctx, EndpointInstructors, url.Values{"idCafedra": {cafedraID}}, opts)
}

func httpStatusText(status int) string {
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "unexpected status"
}
