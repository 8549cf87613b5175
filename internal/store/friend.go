package store

import (
	"encoding/json"
	"fmt"

	"github.com/matheus3301/msgr/internal/model"
)

// ReplaceFriends swaps the cached friend list.
func (db *DB) ReplaceFriends(friends []model.Friend) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM friends`); err != nil {
		return fmt.Errorf("clear friends: %w", err)
	}
	for _, f := range friends {
		status := f.Status
		if status == "" {
			status = model.Offline
		}
		if _, err := tx.Exec(`INSERT INTO friends (id, username, full_name, status) VALUES (?, ?, ?, ?)`,
			f.ID, f.Username, f.FullName, string(status)); err != nil {
			return fmt.Errorf("insert friend %d: %w", f.ID, err)
		}
	}
	return tx.Commit()
}

// ListFriends returns cached friends ordered by id.
func (db *DB) ListFriends() ([]model.Friend, error) {
	rows, err := db.Query(`SELECT id, username, full_name, status FROM friends ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var friends []model.Friend
	for rows.Next() {
		var (
			f      model.Friend
			status string
		)
		if err := rows.Scan(&f.ID, &f.Username, &f.FullName, &status); err != nil {
			return nil, err
		}
		f.Status = model.Presence(status)
		friends = append(friends, f)
	}
	return friends, rows.Err()
}

// ReplaceGroups swaps the cached group list.
func (db *DB) ReplaceGroups(groups []model.Group) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM chat_groups`); err != nil {
		return fmt.Errorf("clear groups: %w", err)
	}
	for _, g := range groups {
		members, err := json.Marshal(g.Members)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT INTO chat_groups (id, name, members, created_by) VALUES (?, ?, ?, ?)`,
			g.ID, g.Name, string(members), g.CreatedBy); err != nil {
			return fmt.Errorf("insert group %d: %w", g.ID, err)
		}
	}
	return tx.Commit()
}

// ListGroups returns cached groups ordered by id.
func (db *DB) ListGroups() ([]model.Group, error) {
	rows, err := db.Query(`SELECT id, name, members, created_by FROM chat_groups ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var groups []model.Group
	for rows.Next() {
		var (
			g       model.Group
			members string
		)
		if err := rows.Scan(&g.ID, &g.Name, &members, &g.CreatedBy); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(members), &g.Members); err != nil {
			return nil, fmt.Errorf("decode members of group %d: %w", g.ID, err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}
