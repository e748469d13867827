package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type PgChatRepository struct {
	conn *sql.DB

	// overridable in tests
	insertDirectRoom     func(externalId, directKey string, userA, userB int) (Room, error)
	roomByDirectKey      func(directKey string) (Room, error)
	reactivateMember     func(roomId, userId int) error
	insertMessage        func(params CreateMessageParams, metadata []byte) (Message, error)
	messageByClientMsgId func(clientMsgId string) (Message, error)
}

func NewPgChatRepository(dsn string) (*PgChatRepository, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(); err != nil {
		return nil, err
	}

	return newPgChatRepository(conn), nil
}

func newPgChatRepository(conn *sql.DB) *PgChatRepository {
	db := &PgChatRepository{conn: conn}
	db.insertDirectRoom = db.insertDirectRoomTx
	db.roomByDirectKey = db.getRoomByDirectKey
	db.reactivateMember = db.reactivateMemberRow
	db.insertMessage = db.insertMessageTx
	db.messageByClientMsgId = db.getMessageByClientMsgId
	return db
}

func (db *PgChatRepository) Ping() error {
	return db.conn.Ping()
}

func (db *PgChatRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Migrate applies the embedded schema migrations.
func (db *PgChatRepository) Migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	driver, err := postgres.WithInstance(db.conn, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}
