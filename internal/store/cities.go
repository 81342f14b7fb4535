package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/murmur/internal/gateway"
	"github.com/roach88/murmur/internal/ir"
)

var _ gateway.Gateway = (*Store)(nil)

// AddCity registers a city. Slugs are unique.
func (s *Store) AddCity(ctx context.Context, slug, name string) (ir.City, error) {
	if slug == "" {
		return ir.City{}, fmt.Errorf("add city: empty slug")
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO cities (slug, name) VALUES (?, ?)
	`, slug, name)
	if err != nil {
		return ir.City{}, fmt.Errorf("add city %q: %w", slug, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ir.City{}, fmt.Errorf("add city %q: last insert id: %w", slug, err)
	}
	return ir.City{ID: id, Slug: slug, Name: name}, nil
}

// ListCities returns every city ordered by slug.
func (s *Store) ListCities(ctx context.Context) ([]ir.City, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, slug, name FROM cities ORDER BY slug ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query cities: %w", err)
	}
	defer rows.Close()

	cities := []ir.City{}
	for rows.Next() {
		var c ir.City
		if err := rows.Scan(&c.ID, &c.Slug, &c.Name); err != nil {
			return nil, fmt.Errorf("scan city: %w", err)
		}
		cities = append(cities, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cities: %w", err)
	}
	return cities, nil
}

// ResolveCity implements gateway.Gateway.
func (s *Store) ResolveCity(ctx context.Context, slug string) (ir.City, error) {
	if err := s.begin(ctx, gateway.OpResolveCity); err != nil {
		return ir.City{}, err
	}
	var c ir.City
	err := s.db.QueryRowContext(ctx, `
		SELECT id, slug, name FROM cities WHERE slug = ?
	`, slug).Scan(&c.ID, &c.Slug, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.City{}, &gateway.CallError{Op: gateway.OpResolveCity, Err: fmt.Errorf("%w: %s", gateway.ErrCityNotFound, slug)}
	}
	if err != nil {
		return ir.City{}, &gateway.CallError{Op: gateway.OpResolveCity, Err: err}
	}
	return c, nil
}
