package types

import (
	"sort"
	"time"
)

// Instance is the central reconciled entity: a single declared runtime
// occurrence of a service within a formation.
type Instance struct {
	Formation  string
	Service    string
	Name       string // "<service>.<instance>", globally unique
	Release    string
	ID         string // short opaque id
	Image      string
	Command    []string
	Env        map[string]string
	Ports      []PortSpec
	Placement  PlacementOptions
	State      InstanceState
	AssignedTo string // executor name, empty if unassigned
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PortSpec describes one exposed port of an instance.
type PortSpec struct {
	Name          string
	ContainerPort int
	Protocol      string
}

// PlacementOptions steers an instance to suitable executors (spec §3, §4.4).
type PlacementOptions struct {
	Requirements []string // boolean expressions, evaluated with {tags, host, domain}
	Rank         string   // scalar expression, evaluated with {ncont}; empty = default rank
}

// InstanceState is a node in the instance state machine (spec §3).
type InstanceState string

const (
	StatePending      InstanceState = "PENDING"
	StateRunning      InstanceState = "RUNNING"
	StateMigrating    InstanceState = "MIGRATING"
	StateShuttingDown InstanceState = "SHUTTING_DOWN"
	StateTerminated   InstanceState = "TERMINATED"
)

// IsRunning reports whether the instance is "running" in the reconciliation
// sense: state ∈ {PENDING, RUNNING, MIGRATING}.
func (i *Instance) IsRunning() bool {
	switch i.State {
	case StatePending, StateRunning, StateMigrating:
		return true
	default:
		return false
	}
}

// Release is an immutable record of a formation's services at a given
// release name (spec §3). The reserved service name "_store" identifies the
// coordination-store instance; "_bootstrap" identifies the bootstrapper
// itself and is never deployed as an instance.
type Release struct {
	Name     string
	Services map[string]ServiceTemplate
}

const (
	ServiceStore     = "_store"
	ServiceBootstrap = "_bootstrap"
)

// ServiceTemplate is the per-service stanza of a release manifest.
type ServiceTemplate struct {
	Image   string
	Command []string
	Env     map[string]string
	Ports   []PortSpec
}

// Executor is a live description of a fleet node, observed via the executor
// manager. Executors are not persisted by the core; they are discovered.
type Executor struct {
	Name   string
	Host   string
	Domain string
	Tags   map[string]bool

	containers []Container
}

// NewExecutor constructs an Executor with its observed container list.
func NewExecutor(name, host, domain string, tags []string, containers []Container) Executor {
	tagSet := make(map[string]bool, len(tags))
	for _, t := range tags {
		tagSet[t] = true
	}
	return Executor{Name: name, Host: host, Domain: domain, Tags: tagSet, containers: containers}
}

// Containers returns the executor's current container list.
func (e Executor) Containers() []Container {
	return e.containers
}

// Container is the observed runtime realization of an instance on its
// executor. Fields mirror the subset of Instance that can drift.
type Container struct {
	InstanceName string
	Image        string
	Command      []string
	Env          map[string]string
	Ports        []PortSpec
}

// EqualToInstance reports whether the container's observed configuration
// matches the instance's declared configuration (spec §3, invariant §8.6):
// image equal, command equal, env equal as mappings, ports equal as ordered
// lists with empty ≡ empty.
func (c Container) EqualToInstance(i *Instance) bool {
	if c.Image != i.Image {
		return false
	}
	if !stringSlicesEqual(c.Command, i.Command) {
		return false
	}
	if !envEqual(c.Env, i.Env) {
		return false
	}
	if !portsEqual(c.Ports, i.Ports) {
		return false
	}
	return true
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for idx := range a {
		if a[idx] != b[idx] {
			return false
		}
	}
	return true
}

func envEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

func portsEqual(a, b []PortSpec) bool {
	if len(a) != len(b) {
		return false
	}
	for idx := range a {
		if a[idx] != b[idx] {
			return false
		}
	}
	return true
}

// SortInstancesByName orders instances by name. Both Store implementations
// apply it to every query result, so control loops see instances in name
// order.
func SortInstancesByName(instances []*Instance) {
	sort.Slice(instances, func(i, j int) bool { return instances[i].Name < instances[j].Name })
}
