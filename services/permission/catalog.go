package permission

import (
	"context"
	"time"

	"github.com/helpdesk/ticket-gateway/models"
	"go.uber.org/zap"
)

// Permission categories used to group the catalog for display
const (
	CategoryTicket      = "Ticket"
	CategoryUser        = "User"
	CategoryRole        = "Role"
	CategoryDepartment  = "Department"
	CategoryDispatcher  = "Dispatcher"
	CategoryCoordinator = "Coordinator"
	CategoryReport      = "Report"
	CategoryAnalytics   = "Analytics"
	CategorySystem      = "System"
	CategoryProject     = "Project"
)

var defaultPermissions = []models.Permission{
	{ID: "ticket:view", Name: "View Tickets", Description: "View tickets in the system", Category: CategoryTicket},
	{ID: "ticket:create", Name: "Create Tickets", Description: "Create new tickets", Category: CategoryTicket},
	{ID: "ticket:update", Name: "Update Tickets", Description: "Edit ticket details", Category: CategoryTicket},
	{ID: "ticket:delete", Name: "Delete Tickets", Description: "Delete tickets", Category: CategoryTicket},
	{ID: "ticket:assign", Name: "Assign Tickets", Description: "Assign tickets to users", Category: CategoryTicket},
	{ID: "ticket:comment", Name: "Comment on Tickets", Description: "Add comments to tickets", Category: CategoryTicket},
	{ID: "ticket:change-status", Name: "Change Ticket Status", Description: "Move tickets between statuses", Category: CategoryTicket},
	{ID: "ticket:view-all", Name: "View All Tickets", Description: "View tickets across all departments", Category: CategoryTicket},

	{ID: "user:view", Name: "View Users", Description: "View the user list", Category: CategoryUser},
	{ID: "user:create", Name: "Create Users", Description: "Create new users", Category: CategoryUser},
	{ID: "user:update", Name: "Update Users", Description: "Edit user details", Category: CategoryUser},
	{ID: "user:delete", Name: "Delete Users", Description: "Delete users", Category: CategoryUser},

	{ID: "role:view", Name: "View Roles", Description: "View roles and their permissions", Category: CategoryRole},
	{ID: "role:create", Name: "Create Roles", Description: "Create new roles", Category: CategoryRole},
	{ID: "role:update", Name: "Update Roles", Description: "Edit roles and their permissions", Category: CategoryRole},
	{ID: "role:delete", Name: "Delete Roles", Description: "Delete roles", Category: CategoryRole},
	{ID: "role:assign", Name: "Assign Roles", Description: "Assign roles to users", Category: CategoryRole},

	{ID: "department:view", Name: "View Departments", Description: "View departments", Category: CategoryDepartment},
	{ID: "department:create", Name: "Create Departments", Description: "Create new departments", Category: CategoryDepartment},
	{ID: "department:update", Name: "Update Departments", Description: "Edit department details", Category: CategoryDepartment},
	{ID: "department:delete", Name: "Delete Departments", Description: "Delete departments", Category: CategoryDepartment},
	{ID: "department:manage-members", Name: "Manage Department Members", Description: "Add or remove department members", Category: CategoryDepartment},

	{ID: "dispatcher:assign", Name: "Assign Dispatchers", Description: "Appoint department dispatchers", Category: CategoryDispatcher},
	{ID: "dispatcher:remove", Name: "Remove Dispatchers", Description: "Remove department dispatchers", Category: CategoryDispatcher},

	{ID: "coordinator:assign", Name: "Assign Coordinators", Description: "Appoint project coordinators", Category: CategoryCoordinator},
	{ID: "coordinator:remove", Name: "Remove Coordinators", Description: "Remove project coordinators", Category: CategoryCoordinator},

	{ID: "report:view", Name: "View Reports", Description: "View reports", Category: CategoryReport},
	{ID: "report:create", Name: "Create Reports", Description: "Create new reports", Category: CategoryReport},
	{ID: "report:export", Name: "Export Reports", Description: "Export reports to files", Category: CategoryReport},

	{ID: "analytics:view", Name: "View Analytics", Description: "View analytics dashboards", Category: CategoryAnalytics},
	{ID: "analytics:advanced", Name: "Advanced Analytics", Description: "Use advanced analytics and trend views", Category: CategoryAnalytics},

	{ID: "system:settings", Name: "System Settings", Description: "Change system configuration", Category: CategorySystem},
	{ID: "system:logs", Name: "View System Logs", Description: "Read system logs", Category: CategorySystem},
	{ID: "system:backup", Name: "System Backup", Description: "Back up and restore data", Category: CategorySystem},

	{ID: "project:view", Name: "View Projects", Description: "View projects", Category: CategoryProject},
	{ID: "project:create", Name: "Create Projects", Description: "Create new projects", Category: CategoryProject},
	{ID: "project:update", Name: "Update Projects", Description: "Edit project details", Category: CategoryProject},
	{ID: "project:delete", Name: "Delete Projects", Description: "Delete projects", Category: CategoryProject},
	{ID: "project:manage-members", Name: "Manage Project Members", Description: "Add or remove project members", Category: CategoryProject},
}

// DefaultPermissions returns a copy of the built-in permission catalog
func DefaultPermissions() []models.Permission {
	out := make([]models.Permission, len(defaultPermissions))
	copy(out, defaultPermissions)
	return out
}

// Lookup returns the built-in definition of id
func Lookup(id string) (models.Permission, bool) {
	for _, p := range defaultPermissions {
		if p.ID == id {
			return p, true
		}
	}
	return models.Permission{}, false
}

// CategoryGroup is one display group of the catalog
type CategoryGroup struct {
	Category    string              `json:"category"`
	Permissions []models.Permission `json:"permissions"`
}

// GroupByCategory groups permissions, keeping categories in first-seen order
func GroupByCategory(perms []models.Permission) []CategoryGroup {
	groups := make([]CategoryGroup, 0)
	index := make(map[string]int)
	for _, p := range perms {
		i, ok := index[p.Category]
		if !ok {
			i = len(groups)
			index[p.Category] = i
			groups = append(groups, CategoryGroup{Category: p.Category})
		}
		groups[i].Permissions = append(groups[i].Permissions, p)
	}
	return groups
}

// Store reads permission definitions from persistent storage
type Store interface {
	List(ctx context.Context) ([]*models.Permission, error)
}

// Catalog serves permission definitions for display. It is never consulted
// for authorization decisions.
type Catalog struct {
	store  Store
	logger *zap.Logger
	// timeout bounds a single store read
	timeout time.Duration
}

// NewCatalog creates a catalog. store may be nil, in which case only the
// built-in definitions are served.
func NewCatalog(store Store, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{
		store:   store,
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

// List returns stored definitions, or the defaults if the store is empty or failing
func (c *Catalog) List(ctx context.Context) []models.Permission {
	if c.store == nil {
		return DefaultPermissions()
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	stored, err := c.store.List(ctx)
	if err != nil {
		c.logger.Warn("falling back to built-in permission catalog", zap.Error(err))
		return DefaultPermissions()
	}
	if len(stored) == 0 {
		return DefaultPermissions()
	}

	out := make([]models.Permission, 0, len(stored))
	for _, p := range stored {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out
}

// Get returns the definition of id from the catalog
func (c *Catalog) Get(ctx context.Context, id string) (models.Permission, bool) {
	for _, p := range c.List(ctx) {
		if p.ID == id {
			return p, true
		}
	}
	return models.Permission{}, false
}

// Grouped returns the catalog grouped by category
func (c *Catalog) Grouped(ctx context.Context) []CategoryGroup {
	return GroupByCategory(c.List(ctx))
}
