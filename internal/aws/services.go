package aws

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yuxishi/aws-limit-checker/internal/checker"
	apperrors "github.com/yuxishi/aws-limit-checker/internal/errors"
)

// Constructor builds a checker from the shared options and client factory.
type Constructor func(opts checker.Options, factory ClientFactory) checker.Checker

// Services maps every supported service name to its constructor.
var Services = map[string]Constructor{
	"AutoScaling": func(o checker.Options, f ClientFactory) checker.Checker { return NewAutoScaling(o, f) },
	"CloudTrail":  func(o checker.Options, f ClientFactory) checker.Checker { return NewCloudTrail(o, f) },
	"EBS":         func(o checker.Options, f ClientFactory) checker.Checker { return NewEBS(o, f) },
	"EC2":         func(o checker.Options, f ClientFactory) checker.Checker { return NewEC2(o, f) },
	"ECR":         func(o checker.Options, f ClientFactory) checker.Checker { return NewECR(o, f) },
	"EKS":         func(o checker.Options, f ClientFactory) checker.Checker { return NewEKS(o, f) },
	"ELB":         func(o checker.Options, f ClientFactory) checker.Checker { return NewELB(o, f) },
	"VPC":         func(o checker.Options, f ClientFactory) checker.Checker { return NewVPC(o, f) },
}

// ServiceNames returns the supported service names, sorted.
func ServiceNames() []string {
	names := make([]string, 0, len(Services))
	for name := range Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveService returns the canonical name for a case-insensitive service name.
func ResolveService(name string) (string, bool) {
	for known := range Services {
		if strings.EqualFold(known, name) {
			return known, true
		}
	}
	return "", false
}

// NewRegistry registers a checker for every selected service. An empty
// include list selects all services; exclude removes services from it.
func NewRegistry(include, exclude []string, maxConcurrency int, opts checker.Options, factory ClientFactory) (*checker.Registry, error) {
	selected := make(map[string]bool)
	if len(include) == 0 {
		for name := range Services {
			selected[name] = true
		}
	}
	for _, name := range include {
		canonical, ok := ResolveService(name)
		if !ok {
			return nil, &apperrors.ErrConfiguration{Field: "services", Reason: fmt.Sprintf("unknown service %q", name)}
		}
		selected[canonical] = true
	}
	for _, name := range exclude {
		canonical, ok := ResolveService(name)
		if !ok {
			return nil, &apperrors.ErrConfiguration{Field: "skip_services", Reason: fmt.Sprintf("unknown service %q", name)}
		}
		delete(selected, canonical)
	}

	registry := checker.NewRegistry(maxConcurrency, opts.Logger)
	for _, name := range ServiceNames() {
		if !selected[name] {
			continue
		}
		if err := registry.Register(Services[name](opts, factory)); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
