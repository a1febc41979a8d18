package modules

// Module keys referenced by the default permission profiles and route guards.
const (
	KeyDashboard     = "dashboard"
	KeyLeads         = "leads"
	KeyClients       = "clients"
	KeyProjects      = "projects"
	KeyTasks         = "tasks"
	KeyMyTasks       = "myTasks"
	KeyMyProjects    = "myProjects"
	KeyTimeTracking  = "timeTracking"
	KeyEvents        = "events"
	KeyMessages      = "messages"
	KeyTickets       = "tickets"
	KeyDocuments     = "documents"
	KeyAttendance    = "attendance"
	KeyLeaveRequests = "leaveRequests"
	KeyEmployees     = "employees"
	KeyProposals     = "proposals"
	KeyEstimates     = "estimates"
	KeyInvoices      = "invoices"
	KeyPayments      = "payments"
	KeyContracts     = "contracts"
	KeyStore         = "store"
	KeyFiles         = "files"
	KeyNotes         = "notes"
	KeyOrders        = "orders"
	KeySubscriptions = "subscriptions"
	KeyExpenses      = "expenses"
	KeyReports       = "reports"
	KeySettings      = "settings"
	KeyRoles         = "roles"
)

// DefaultCatalog is the module list loaded by the seed command.
var DefaultCatalog = []Module{
	{Key: KeyDashboard, DisplayName: "Dashboard", ActorType: ActorAll, Active: true, SortOrder: 1},
	{Key: KeyLeads, DisplayName: "Leads", ActorType: ActorAdmin, Active: true, SortOrder: 2},
	{Key: KeyClients, DisplayName: "Clients", ActorType: ActorAdmin, Active: true, SortOrder: 3},
	{Key: KeyProjects, DisplayName: "Projects", ActorType: ActorAll, Active: true, SortOrder: 4},
	{Key: KeyTasks, DisplayName: "Tasks", ActorType: ActorAdmin, Active: true, SortOrder: 5},
	{Key: KeyMyTasks, DisplayName: "My Tasks", ActorType: ActorEmployee, Active: true, SortOrder: 6},
	{Key: KeyMyProjects, DisplayName: "My Projects", ActorType: ActorEmployee, Active: true, SortOrder: 7},
	{Key: KeyTimeTracking, DisplayName: "Time Tracking", ActorType: ActorEmployee, Active: true, SortOrder: 8},
	{Key: KeyEvents, DisplayName: "Events", ActorType: ActorEmployee, Active: true, SortOrder: 9},
	{Key: KeyMessages, DisplayName: "Messages", ActorType: ActorAll, Active: true, SortOrder: 10},
	{Key: KeyTickets, DisplayName: "Tickets", ActorType: ActorAll, Active: true, SortOrder: 11},
	{Key: KeyDocuments, DisplayName: "Documents", ActorType: ActorEmployee, Active: true, SortOrder: 12},
	{Key: KeyAttendance, DisplayName: "Attendance", ActorType: ActorEmployee, Active: true, SortOrder: 13},
	{Key: KeyLeaveRequests, DisplayName: "Leave Requests", ActorType: ActorEmployee, Active: true, SortOrder: 14},
	{Key: KeyEmployees, DisplayName: "Employees", ActorType: ActorAdmin, Active: true, SortOrder: 15},
	{Key: KeyProposals, DisplayName: "Proposals", ActorType: ActorAll, Active: true, SortOrder: 16},
	{Key: KeyEstimates, DisplayName: "Estimates", ActorType: ActorAdmin, Active: true, SortOrder: 17},
	{Key: KeyInvoices, DisplayName: "Invoices", ActorType: ActorAll, Active: true, SortOrder: 18},
	{Key: KeyPayments, DisplayName: "Payments", ActorType: ActorAll, Active: true, SortOrder: 19},
	{Key: KeyContracts, DisplayName: "Contracts", ActorType: ActorAll, Active: true, SortOrder: 20},
	{Key: KeyStore, DisplayName: "Store", ActorType: ActorClient, Active: true, SortOrder: 21},
	{Key: KeyFiles, DisplayName: "Files", ActorType: ActorAll, Active: true, SortOrder: 22},
	{Key: KeyNotes, DisplayName: "Notes", ActorType: ActorAll, Active: true, SortOrder: 23},
	{Key: KeyOrders, DisplayName: "Orders", ActorType: ActorClient, Active: true, SortOrder: 24},
	{Key: KeySubscriptions, DisplayName: "Subscriptions", ActorType: ActorClient, Active: true, SortOrder: 25},
	{Key: KeyExpenses, DisplayName: "Expenses", ActorType: ActorAdmin, Active: true, SortOrder: 26},
	{Key: KeyReports, DisplayName: "Reports", ActorType: ActorAdmin, Active: true, SortOrder: 27},
	{Key: KeySettings, DisplayName: "Settings", ActorType: ActorAdmin, Active: true, SortOrder: 28},
	{Key: KeyRoles, DisplayName: "Roles & Permissions", ActorType: ActorAdmin, Active: true, SortOrder: 29},
}
