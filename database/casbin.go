package database

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	casbinmodel "github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"

	"messenger-core/model"
)

const (
	AdminRole   = "admin"
	adminPath   = "/v1/admin/*"
	adminMethod = "(GET)|(POST)|(PUT)|(DELETE)"
)

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch(r.obj, p.obj) && regexMatch(r.act, p.act)
`

// Casbin builds the enforcer guarding the admin routes. Policies live in the
// same database; users whose directory role is admin are granted the admin role.
func Casbin(db *gorm.DB) (*casbin.Enforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize casbin adapter: %w", err)
	}
	m, err := casbinmodel.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("failed to parse casbin model: %w", err)
	}
	e, err := casbin.NewEnforcer(m, adapter)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}
	if err := e.LoadPolicy(); err != nil {
		return nil, err
	}

	if has, _ := e.HasPolicy(AdminRole, adminPath, adminMethod); !has {
		if _, err := e.AddPolicy(AdminRole, adminPath, adminMethod); err != nil {
			return nil, err
		}
	}

	var admins []model.User
	if err := db.Where("role = ?", AdminRole).Find(&admins).Error; err != nil {
		return nil, err
	}
	for i := range admins {
		if _, err := e.AddRoleForUser(admins[i].StringID(), AdminRole); err != nil {
			return nil, err
		}
	}
	return e, nil
}
