// Shelfwise - Book Recommendation Scoring Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shelfwise/shelfwise/internal/metrics"
	"github.com/shelfwise/shelfwise/internal/recommend"
)

// UpsertWork inserts or replaces a catalog work. Tag fields mutate on
// catalog re-sync; identity fields are stable.
func (db *DB) UpsertWork(ctx context.Context, work *recommend.Work) error {
	return db.execRetried(ctx, "upsert", "works", `
		INSERT INTO works (id, external_id, title, subtitle, description,
			subjects, subject_places, subject_times, subject_people,
			original_languages, other_titles, first_publish_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			external_id = excluded.external_id,
			title = excluded.title,
			subtitle = excluded.subtitle,
			description = excluded.description,
			subjects = excluded.subjects,
			subject_places = excluded.subject_places,
			subject_times = excluded.subject_times,
			subject_people = excluded.subject_people,
			original_languages = excluded.original_languages,
			other_titles = excluded.other_titles,
			first_publish_date = excluded.first_publish_date`,
		work.ID, work.ExternalID, work.Title, work.Subtitle, work.Description,
		work.Subjects, work.SubjectPlaces, work.SubjectTimes, work.SubjectPeople,
		work.OriginalLanguages, work.OtherTitles, work.FirstPublishDate,
	)
}

const workColumns = `id, external_id, title, subtitle, description,
	subjects, subject_places, subject_times, subject_people,
	original_languages, other_titles, first_publish_date`

func scanWork(row interface{ Scan(...any) error }) (*recommend.Work, error) {
	var w recommend.Work
	err := row.Scan(&w.ID, &w.ExternalID, &w.Title, &w.Subtitle, &w.Description,
		&w.Subjects, &w.SubjectPlaces, &w.SubjectTimes, &w.SubjectPeople,
		&w.OriginalLanguages, &w.OtherTitles, &w.FirstPublishDate)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// GetWork returns a work by ID, or (nil, nil) when unknown.
func (db *DB) GetWork(ctx context.Context, workID int64) (*recommend.Work, error) {
	start := time.Now()
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+workColumns+` FROM works WHERE id = ?`, workID)
	work, err := scanWork(row)
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		work = nil
	}
	metrics.RecordDBQuery("get", "works", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("query work %d: %w", workID, err)
	}
	return work, nil
}

// GetAllWorks returns the full catalog, ordered by ID.
func (db *DB) GetAllWorks(ctx context.Context) ([]recommend.Work, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+workColumns+` FROM works ORDER BY id`)
	metrics.RecordDBQuery("list", "works", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("query works: %w", err)
	}
	defer rows.Close()

	var out []recommend.Work
	for rows.Next() {
		work, scanErr := scanWork(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan work: %w", scanErr)
		}
		out = append(out, *work)
	}
	return out, rows.Err()
}

// UpsertAuthor inserts or renames an author.
func (db *DB) UpsertAuthor(ctx context.Context, author *recommend.Author) error {
	return db.execRetried(ctx, "upsert", "authors", `
		INSERT INTO authors (id, name) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name`,
		author.ID, author.Name,
	)
}

// LinkAuthorWork records an author-work link; relinking an existing pair
// updates the role.
func (db *DB) LinkAuthorWork(ctx context.Context, link *recommend.AuthorWork) error {
	return db.execRetried(ctx, "upsert", "author_works", `
		INSERT INTO author_works (author_id, work_id, role) VALUES (?, ?, ?)
		ON CONFLICT (author_id, work_id) DO UPDATE SET role = excluded.role`,
		link.AuthorID, link.WorkID, link.Role,
	)
}

// GetWorkAuthors returns a work's authors, ordered by author ID.
func (db *DB) GetWorkAuthors(ctx context.Context, workID int64) ([]recommend.Author, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `
		SELECT a.id, a.name
		FROM authors a
		JOIN author_works aw ON aw.author_id = a.id
		WHERE aw.work_id = ?
		ORDER BY a.id`, workID)
	metrics.RecordDBQuery("list", "author_works", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("query authors of work %d: %w", workID, err)
	}
	defer rows.Close()

	var out []recommend.Author
	for rows.Next() {
		var a recommend.Author
		if scanErr := rows.Scan(&a.ID, &a.Name); scanErr != nil {
			return nil, fmt.Errorf("scan author: %w", scanErr)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetAuthorWorks returns every author-work link, ordered by work ID.
func (db *DB) GetAuthorWorks(ctx context.Context) ([]recommend.AuthorWork, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `
		SELECT author_id, work_id, COALESCE(role, '')
		FROM author_works ORDER BY work_id, author_id`)
	metrics.RecordDBQuery("list", "author_works", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("query author links: %w", err)
	}
	defer rows.Close()

	var out []recommend.AuthorWork
	for rows.Next() {
		var link recommend.AuthorWork
		if scanErr := rows.Scan(&link.AuthorID, &link.WorkID, &link.Role); scanErr != nil {
			return nil, fmt.Errorf("scan author link: %w", scanErr)
		}
		out = append(out, link)
	}
	return out, rows.Err()
}

// UpsertUser inserts or updates a user account.
func (db *DB) UpsertUser(ctx context.Context, user *recommend.User) error {
	return db.execRetried(ctx, "upsert", "users", `
		INSERT INTO users (id, email, status) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			email = excluded.email,
			status = excluded.status`,
		user.ID, user.Email, string(user.Status),
	)
}

// GetUser returns a user by ID, or (nil, nil) when unknown.
func (db *DB) GetUser(ctx context.Context, userID int64) (*recommend.User, error) {
	start := time.Now()
	var (
		u      recommend.User
		status string
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, email, status FROM users WHERE id = ?`, userID).
		Scan(&u.ID, &u.Email, &status)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.RecordDBQuery("get", "users", time.Since(start), nil)
		return nil, nil
	}
	metrics.RecordDBQuery("get", "users", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("query user %d: %w", userID, err)
	}
	u.Status = recommend.UserStatus(status)
	return &u, nil
}
