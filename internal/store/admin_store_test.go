package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"
)

func TestAdminStoreIsAdminNoRows(t *testing.T) {
	ctx := context.Background()
	store := NewAdminStore(stubDB{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			return sql.ErrNoRows
		},
	})
	isAdmin, isSuper, err := store.IsAdmin(ctx, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if isAdmin || isSuper {
		t.Fatalf("expected non-admin result")
	}
}

func TestAdminStoreIsAdmin(t *testing.T) {
	ctx := context.Background()
	store := NewAdminStore(stubDB{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "FROM admins") {
				t.Fatalf("unexpected query: %s", query)
			}
			*dest.(*bool) = true
			return nil
		},
	})
	isAdmin, isSuper, err := store.IsAdmin(ctx, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !isAdmin || !isSuper {
		t.Fatalf("expected admin/super true")
	}
}

func TestAdminStoreHasRole(t *testing.T) {
	ctx := context.Background()
	store := NewAdminStore(stubDB{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "FROM admin_roles") {
				t.Fatalf("unexpected query: %s", query)
			}
			*dest.(*int) = 1
			return nil
		},
	})
	hasRole, err := store.HasRole(ctx, "user-1", RoleCanSettle)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasRole {
		t.Fatalf("expected role to be granted")
	}
}

func TestAdminStoreCreateAdmin(t *testing.T) {
	ctx := context.Background()
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "INSERT INTO admins") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 3 || args[0] != "user-1" || args[1] != true {
				t.Fatalf("unexpected args: %#v", args)
			}
			return stubResult{rows: 1}, nil
		},
	}
	store := NewAdminStore(stubDB{})
	if err := store.CreateAdmin(ctx, execer, "user-1", true, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAdminStoreGrantRole(t *testing.T) {
	ctx := context.Background()
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "INSERT INTO admin_roles") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 2 || args[0] != "user-1" || args[1] != RoleCanSettle {
				t.Fatalf("unexpected args: %#v", args)
			}
			return stubResult{rows: 1}, nil
		},
	}
	store := NewAdminStore(stubDB{})
	if err := store.GrantRole(ctx, execer, "user-1", RoleCanSettle); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAdminStoreHasAnyAdmin(t *testing.T) {
	ctx := context.Background()
	store := NewAdminStore(stubDB{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "SELECT COUNT(1)") {
				t.Fatalf("unexpected query: %s", query)
			}
			*dest.(*int) = 2
			return nil
		},
	})
	hasAny, err := store.HasAnyAdmin(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasAny {
		t.Fatalf("expected admins to exist")
	}
}

func TestAdminStoreGrantRoleRejectsUnknownRole(t *testing.T) {
	execer := stubExecer{
		execFn: func(_ context.Context, query string, _ ...any) (sql.Result, error) {
			t.Fatalf("unexpected exec: %s", query)
			return nil, nil
		},
	}
	err := NewAdminStore(stubDB{}).GrantRole(context.Background(), execer, "user-1", "CanPrintMoney")
	if err != ErrUnknownRole {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

func TestAdminStoreAuthorized(t *testing.T) {
	cases := []struct {
		name    string
		admin   bool
		super   bool
		roles   int
		want    bool
		queries int
	}{
		{name: "not admin", want: false, queries: 1},
		{name: "super admin", admin: true, super: true, want: true, queries: 1},
		{name: "admin with role", admin: true, roles: 1, want: true, queries: 2},
		{name: "admin without role", admin: true, want: false, queries: 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			queries := 0
			store := NewAdminStore(stubDB{
				getFn: func(_ context.Context, dest any, query string, args ...any) error {
					queries++
					switch {
					case strings.Contains(query, "FROM admins"):
						if !tc.admin {
							return sql.ErrNoRows
						}
						*dest.(*bool) = tc.super
					case strings.Contains(query, "FROM admin_roles"):
						if args[1] != RoleCanSettle {
							t.Fatalf("unexpected role: %#v", args)
						}
						*dest.(*int) = tc.roles
					default:
						t.Fatalf("unexpected query: %s", query)
					}
					return nil
				},
			})
			ok, err := store.Authorized(context.Background(), "user-1", RoleCanSettle)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ok != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, ok)
			}
			if queries != tc.queries {
				t.Fatalf("expected %d queries, got %d", tc.queries, queries)
			}
		})
	}
}
