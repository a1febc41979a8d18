package rbac

import (
	"strings"

	"github.com/odyssey-erp/odyssey-crm/internal/modules"
)

// moduleSet is either every module or an explicit list; except inverts the list.
type moduleSet struct {
	all    bool
	except bool
	keys   map[string]struct{}
}

func everything() moduleSet { return moduleSet{all: true} }

func nothing() moduleSet { return moduleSet{} }

func only(keys ...string) moduleSet { return moduleSet{keys: setOf(keys)} }

func allExcept(keys ...string) moduleSet { return moduleSet{except: true, keys: setOf(keys)} }

func setOf(keys []string) map[string]struct{} {
	out := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		out[k] = struct{}{}
	}
	return out
}

func concat(base []string, extra ...string) []string {
	out := make([]string, 0, len(base)+len(extra))
	return append(append(out, base...), extra...)
}

func (s moduleSet) contains(key string) bool {
	if s.all {
		return true
	}
	_, ok := s.keys[key]
	if s.except {
		return !ok
	}
	return ok
}

type profile struct {
	view, add, edit, del moduleSet
}

func (p profile) flagsFor(key string) Flags {
	return Flags{
		CanView:   p.view.contains(key),
		CanAdd:    p.add.contains(key),
		CanEdit:   p.edit.contains(key),
		CanDelete: p.del.contains(key),
	}
}

var (
	employeeAdd  = []string{modules.KeyMyTasks, modules.KeyMyProjects, modules.KeyTimeTracking, modules.KeyEvents, modules.KeyMessages, modules.KeyTickets, modules.KeyDocuments, modules.KeyAttendance, modules.KeyLeaveRequests}
	employeeEdit = []string{modules.KeyMyTasks, modules.KeyMyProjects, modules.KeyTimeTracking, modules.KeyEvents, modules.KeyMessages, modules.KeyTickets, modules.KeyDocuments}
	staffDelete  = []string{modules.KeyMessages, modules.KeyTickets, modules.KeyDocuments}

	adminProfile = profile{view: everything(), add: everything(), edit: everything(), del: everything()}

	employeeProfile = profile{
		view: everything(),
		add:  only(employeeAdd...),
		edit: only(employeeEdit...),
		del:  only(staffDelete...),
	}

	hrProfile = profile{
		view: everything(),
		add:  only(concat(employeeAdd, modules.KeyEmployees, modules.KeyTasks, modules.KeyProjects)...),
		edit: only(concat(employeeEdit, modules.KeyEmployees, modules.KeyAttendance, modules.KeyTasks, modules.KeyProjects)...),
		del:  only(staffDelete...),
	}

	salesProfile = profile{
		view: everything(),
		add: only(modules.KeyMyTasks, modules.KeyMyProjects, modules.KeyTimeTracking, modules.KeyEvents, modules.KeyMessages,
			modules.KeyTickets, modules.KeyDocuments, modules.KeyLeads, modules.KeyClients, modules.KeyProposals, modules.KeyInvoices),
		edit: only(concat(employeeEdit, modules.KeyLeads, modules.KeyClients, modules.KeyProposals)...),
		del:  only(staffDelete...),
	}

	clientProfile = profile{
		view: only(modules.KeyDashboard, modules.KeyProjects, modules.KeyProposals, modules.KeyInvoices, modules.KeyPayments,
			modules.KeyContracts, modules.KeyStore, modules.KeyFiles, modules.KeyMessages, modules.KeyTickets, modules.KeyNotes,
			modules.KeyOrders, modules.KeySubscriptions),
		add:  only(modules.KeyPayments, modules.KeyMessages, modules.KeyTickets, modules.KeyNotes),
		edit: only(modules.KeyMessages, modules.KeyTickets, modules.KeyNotes),
		del:  only(modules.KeyMessages, modules.KeyTickets, modules.KeyNotes),
	}

	managerProfile = profile{
		view: everything(),
		add:  allExcept(modules.KeySettings, modules.KeyReports),
		edit: allExcept(modules.KeySettings, modules.KeyReports),
		del:  only(modules.KeyTasks, modules.KeyProjects, modules.KeyMessages, modules.KeyTickets, modules.KeyDocuments),
	}

	viewOnlyProfile = profile{view: everything(), add: nothing(), edit: nothing(), del: nothing()}
)

// profileRule matches an upper-cased role name to a profile. Rules are evaluated in order.
type profileRule struct {
	exact    []string
	contains []string
	profile  profile
}

func (r profileRule) matches(name string) bool {
	for _, e := range r.exact {
		if name == e {
			return true
		}
	}
	for _, c := range r.contains {
		if strings.Contains(name, c) {
			return true
		}
	}
	return false
}

var profileRules = []profileRule{
	{exact: []string{"ADMIN"}, profile: adminProfile},
	{exact: []string{"EMPLOYEE"}, profile: employeeProfile},
	{exact: []string{"HR", "HUMAN RESOURCES"}, profile: hrProfile},
	{exact: []string{"SALES", "SALES REP", "SALES REPRESENTATIVE"}, profile: salesProfile},
	{contains: []string{"EMPLOYEE", "STAFF", "WORKER", "MEMBER"}, profile: employeeProfile},
	{exact: []string{"CLIENT"}, profile: clientProfile},
	{exact: []string{"MANAGER"}, profile: managerProfile},
}

func profileFor(roleName string) profile {
	name := strings.ToUpper(strings.TrimSpace(roleName))
	for _, rule := range profileRules {
		if rule.matches(name) {
			return rule.profile
		}
	}
	return viewOnlyProfile
}

// DefaultPermissions derives the seeded permission rows for a role name.
// Unrecognised names receive view access only.
func DefaultPermissions(roleName string, moduleKeys []string) []Permission {
	p := profileFor(roleName)
	out := make([]Permission, 0, len(moduleKeys))
	for _, key := range moduleKeys {
		out = append(out, Permission{Module: key, Flags: p.flagsFor(key)})
	}
	return out
}
