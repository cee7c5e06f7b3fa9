package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	accessDomain "github.com/allisson/cellvault/internal/access/domain"
	cellDomain "github.com/allisson/cellvault/internal/cell/domain"
	cellUsecase "github.com/allisson/cellvault/internal/cell/usecase"
)

// CreateCellOptions carries the create-cell flags.
type CreateCellOptions struct {
	Name           string
	Description    string
	OrganizationID string
	RotationDays   int
	Owner          string
}

// RunCreateCell creates a cell with CellKey version 1 and, when an owner is given,
// grants the owner every action on it.
func RunCreateCell(
	ctx context.Context,
	manager cellUsecase.CellManager,
	logger *slog.Logger,
	writer io.Writer,
	identity Identity,
	opts CreateCellOptions,
	format string,
) error {
	cell, err := manager.CreateCell(ctx, identity.Claims(), &cellDomain.CreateCellInput{
		Name:           opts.Name,
		Description:    opts.Description,
		OrganizationID: opts.OrganizationID,
		RotationDays:   opts.RotationDays,
		Owner:          opts.Owner,
	})
	if err != nil {
		return fmt.Errorf("failed to create cell: %w", err)
	}

	logger.Info("cell created", slog.String("cell_id", cell.ID.String()), slog.String("name", cell.Name))

	if format == "json" {
		return writeJSON(writer, cellView(cell))
	}
	_, _ = fmt.Fprintf(writer, "Cell created\n")
	_, _ = fmt.Fprintf(writer, "ID:            %s\n", cell.ID)
	_, _ = fmt.Fprintf(writer, "Name:          %s\n", cell.Name)
	_, _ = fmt.Fprintf(writer, "Rotation days: %d\n", cell.RotationDays)
	_, _ = fmt.Fprintf(writer, "Key version:   %d\n", cell.CurrentKeyVersion)
	return nil
}

// RunListCells prints one page of cells ordered by name.
func RunListCells(
	ctx context.Context,
	manager cellUsecase.CellManager,
	writer io.Writer,
	identity Identity,
	offset, limit int,
	format string,
) error {
	cells, err := manager.ListCells(ctx, identity.Claims(), offset, limit)
	if err != nil {
		return fmt.Errorf("failed to list cells: %w", err)
	}

	if format == "json" {
		views := make([]map[string]any, 0, len(cells))
		for _, cell := range cells {
			views = append(views, cellView(cell))
		}
		return writeJSON(writer, views)
	}

	if len(cells) == 0 {
		_, _ = fmt.Fprintln(writer, "No cells found")
		return nil
	}
	for _, cell := range cells {
		_, _ = fmt.Fprintf(writer, "%s  %-24s  rotate every %dd, last rotated %s\n",
			cell.ID,
			cell.Name,
			cell.RotationDays,
			cell.LastRotatedAt.Format(time.RFC3339),
		)
	}
	return nil
}

// GrantPolicyOptions carries the grant-policy flags.
type GrantPolicyOptions struct {
	CellID     string
	Subject    string
	Actions    string
	RequireMFA bool
	MaxUses    int64
	NotBefore  string
	NotAfter   string
}

// RunGrantPolicy adds a policy to a cell.
func RunGrantPolicy(
	ctx context.Context,
	manager cellUsecase.CellManager,
	logger *slog.Logger,
	writer io.Writer,
	identity Identity,
	opts GrantPolicyOptions,
	format string,
) error {
	cellID, err := parseID("cell id", opts.CellID)
	if err != nil {
		return err
	}
	actions, err := parseActions(opts.Actions)
	if err != nil {
		return err
	}
	conditions, err := parseConditions(opts)
	if err != nil {
		return err
	}

	policy, err := manager.GrantPolicy(ctx, identity.Claims(), &accessDomain.GrantPolicyInput{
		Subject:    opts.Subject,
		CellID:     cellID,
		Actions:    actions,
		Conditions: conditions,
	})
	if err != nil {
		return fmt.Errorf("failed to grant policy: %w", err)
	}

	logger.Info("policy granted",
		slog.String("policy_id", policy.ID.String()),
		slog.String("cell_id", cellID.String()),
		slog.String("subject", policy.Subject),
	)

	if format == "json" {
		return writeJSON(writer, map[string]any{
			"id":         policy.ID,
			"cell_id":    policy.CellID,
			"subject":    policy.Subject,
			"actions":    policy.Actions,
			"conditions": policy.Conditions,
		})
	}
	_, _ = fmt.Fprintf(writer, "Policy %s granted to %s on cell %s\n", policy.ID, policy.Subject, policy.CellID)
	return nil
}

// RunRevokePolicy removes a policy from a cell.
func RunRevokePolicy(
	ctx context.Context,
	manager cellUsecase.CellManager,
	writer io.Writer,
	identity Identity,
	cellIDValue, policyIDValue string,
) error {
	cellID, err := parseID("cell id", cellIDValue)
	if err != nil {
		return err
	}
	policyID, err := parseID("policy id", policyIDValue)
	if err != nil {
		return err
	}

	if err := manager.RevokePolicy(ctx, identity.Claims(), cellID, policyID); err != nil {
		return fmt.Errorf("failed to revoke policy: %w", err)
	}
	_, _ = fmt.Fprintf(writer, "Policy %s revoked\n", policyID)
	return nil
}

// RunUnlockSubject clears the lockout of a subject.
func RunUnlockSubject(
	ctx context.Context,
	manager cellUsecase.CellManager,
	writer io.Writer,
	identity Identity,
	subject string,
) error {
	if err := manager.Unlock(ctx, identity.Claims(), subject); err != nil {
		return fmt.Errorf("failed to unlock subject: %w", err)
	}
	_, _ = fmt.Fprintf(writer, "Subject %s unlocked\n", subject)
	return nil
}

func cellView(cell *cellDomain.Cell) map[string]any {
	return map[string]any{
		"id":                  cell.ID,
		"name":                cell.Name,
		"description":         cell.Description,
		"organization_id":     cell.OrganizationID,
		"rotation_days":       cell.RotationDays,
		"current_key_version": cell.CurrentKeyVersion,
		"last_rotated_at":     cell.LastRotatedAt,
		"created_at":          cell.CreatedAt,
	}
}

func parseActions(value string) ([]accessDomain.Action, error) {
	var actions []accessDomain.Action
	for part := range strings.SplitSeq(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		action, err := accessDomain.ParseAction(part)
		if err != nil {
			return nil, fmt.Errorf("invalid action %q (valid options: read, write, rotate, administer)", part)
		}
		actions = append(actions, action)
	}
	if len(actions) == 0 {
		return nil, fmt.Errorf("at least one action is required")
	}
	return actions, nil
}

func parseConditions(opts GrantPolicyOptions) ([]accessDomain.Condition, error) {
	var conditions []accessDomain.Condition
	if opts.RequireMFA {
		conditions = append(conditions, accessDomain.RequireMFA())
	}
	if opts.MaxUses > 0 {
		conditions = append(conditions, accessDomain.MaxUses(opts.MaxUses))
	}
	if opts.NotBefore != "" || opts.NotAfter != "" {
		notBefore, err := parseOptionalTime("not-before", opts.NotBefore)
		if err != nil {
			return nil, err
		}
		notAfter, err := parseOptionalTime("not-after", opts.NotAfter)
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, accessDomain.TimeWindow(notBefore, notAfter))
	}
	return conditions, nil
}

func parseOptionalTime(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q (expected RFC 3339): %w", name, value, err)
	}
	return &t, nil
}
