package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/clover/pkg/clover"
	appctx "github.com/Ramsey-B/clover/pkg/context"
)

type seedFile struct {
	Tenants []seedTenant `yaml:"tenants"`
}

type seedTenant struct {
	Name     string         `yaml:"name"`
	Slug     string         `yaml:"slug"`
	Settings map[string]any `yaml:"settings"`
	Users    []seedUser     `yaml:"users"`
	Clients  []seedClient   `yaml:"clients"`
	Segments []seedSegment  `yaml:"segments"`
}

type seedUser struct {
	Email        string `yaml:"email"`
	PasswordHash string `yaml:"password_hash"`
	FirstName    string `yaml:"first_name"`
	LastName     string `yaml:"last_name"`
	Role         string `yaml:"role"`
}

type seedClient struct {
	CompanyName  string         `yaml:"company_name"`
	ContactName  string         `yaml:"contact_name"`
	Email        string         `yaml:"email"`
	Status       string         `yaml:"status"`
	Tags         []string       `yaml:"tags"`
	CustomFields map[string]any `yaml:"custom_fields"`
	// AssignedTo is the email of a user seeded for the same tenant.
	AssignedTo string `yaml:"assigned_to"`
}

type seedSegment struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Criteria    map[string]any `yaml:"criteria"`
}

type seedSummary struct {
	Tenants  int `json:"tenants"`
	Users    int `json:"users"`
	Clients  int `json:"clients"`
	Segments int `json:"segments"`
}

func loadSeedFile(path string) (*seedFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("invalid seed file %s: %w", path, err)
	}
	for i, t := range f.Tenants {
		if t.Slug == "" {
			return nil, fmt.Errorf("tenants[%d]: slug is required", i)
		}
	}
	return &f, nil
}

func newSeedCmd(load loader) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load tenants, users, clients and segments from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f, err := loadSeedFile(file)
			if err != nil {
				return err
			}
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			db, err := newClient(cfg, logger, nil)
			if err != nil {
				return err
			}
			defer db.Disconnect(ctx)

			var summary seedSummary
			err = db.Transaction(ctx, func(ctx context.Context) error {
				for _, t := range f.Tenants {
					if err := seed(ctx, db, t, &summary); err != nil {
						return fmt.Errorf("tenant %s: %w", t.Slug, err)
					}
				}
				return nil
			}, clover.WithTimeout(cfg.TransactionTimeout*4))
			if err != nil {
				return err
			}
			logger.WithContext(ctx).WithFields(map[string]any{
				"tenants":  summary.Tenants,
				"users":    summary.Users,
				"clients":  summary.Clients,
				"segments": summary.Segments,
			}).Info("seed complete")
			return writeJSON(cmd.OutOrStdout(), summary)
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Seed file (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// seed upserts the tenant and its users by natural key, then creates its clients and segments.
func seed(ctx context.Context, db *clover.DB, t seedTenant, summary *seedSummary) error {
	name := t.Name
	if name == "" {
		name = t.Slug
	}
	tenant, err := db.Tenant.Upsert(ctx, clover.UpsertArgs[clover.Tenant]{
		Where:  clover.TenantWhereUnique{Slug: t.Slug},
		Create: clover.TenantCreateInput{Name: name, Slug: t.Slug, Settings: t.Settings},
		Update: clover.TenantUpdateInput{Name: &name},
	})
	if err != nil {
		return err
	}
	summary.Tenants++
	ctx = appctx.SetTenantID(ctx, tenant.ID.String())

	users := make(map[string]*clover.User, len(t.Users))
	for _, u := range t.Users {
		role := clover.UserRole(u.Role)
		user, err := db.User.Upsert(ctx, clover.UpsertArgs[clover.User]{
			Where: clover.UserWhereUnique{TenantIDEmail: &clover.UserTenantIDEmail{TenantID: tenant.ID, Email: u.Email}},
			Create: clover.UserCreateInput{
				TenantID:     tenant.ID,
				Email:        u.Email,
				PasswordHash: u.PasswordHash,
				FirstName:    u.FirstName,
				LastName:     u.LastName,
				Role:         role,
			},
			Update: clover.UserUpdateInput{FirstName: &u.FirstName, LastName: &u.LastName},
		})
		if err != nil {
			return fmt.Errorf("user %s: %w", u.Email, err)
		}
		users[u.Email] = user
		summary.Users++
	}

	for _, c := range t.Clients {
		in := clover.ClientCreateInput{
			TenantID:     tenant.ID,
			CompanyName:  c.CompanyName,
			ContactName:  optional(c.ContactName),
			Email:        optional(c.Email),
			Status:       clover.ClientStatus(c.Status),
			Tags:         c.Tags,
			CustomFields: c.CustomFields,
		}
		if c.AssignedTo != "" {
			user, ok := users[c.AssignedTo]
			if !ok {
				return fmt.Errorf("client %s: unknown assignee %s", c.CompanyName, c.AssignedTo)
			}
			in.AssignedToID = &user.ID
		}
		if _, err := db.Client.Create(ctx, clover.CreateArgs[clover.Client]{Data: in}); err != nil {
			return fmt.Errorf("client %s: %w", c.CompanyName, err)
		}
		summary.Clients++
	}

	for _, s := range t.Segments {
		if _, err := db.Segment.Create(ctx, clover.CreateArgs[clover.Segment]{Data: clover.SegmentCreateInput{
			TenantID:    tenant.ID,
			Name:        s.Name,
			Description: optional(s.Description),
			Criteria:    s.Criteria,
		}}); err != nil {
			return fmt.Errorf("segment %s: %w", s.Name, err)
		}
		summary.Segments++
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
