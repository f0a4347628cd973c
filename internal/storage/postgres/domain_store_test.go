package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/product-url-crawler/internal/crawler"
)

var _ crawler.ResultStore = (*DomainStore)(nil)

func newMockStore(t *testing.T) (*DomainStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewDomainStoreWithPool(mock, "")
	require.NoError(t, err)
	return store, mock
}

func TestUpsertDomain(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	rec := crawler.DomainRecord{
		Domain:    "https://shop.example.com",
		URLs:      []string{"https://shop.example.com/product/1"},
		CrawlDate: now,
	}

	mock.ExpectExec(`(?s)INSERT INTO product_urls .* ON CONFLICT \(domain\) DO UPDATE`).
		WithArgs(rec.Domain, rec.URLs, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO product_urls`).
		WithArgs(rec.Domain, rec.URLs, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.UpsertDomain(context.Background(), rec))
	require.NoError(t, store.UpsertDomain(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertDomainPropagatesError(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO product_urls`).
		WithArgs("d", []string{}, pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	err := store.UpsertDomain(context.Background(), crawler.DomainRecord{Domain: "d"})
	require.ErrorContains(t, err, "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertDomainRequiresDomain(t *testing.T) {
	t.Parallel()

	store, _ := newMockStore(t)
	require.Error(t, store.UpsertDomain(context.Background(), crawler.DomainRecord{}))
}

func TestGetDomain(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	rows := pgxmock.NewRows([]string{"domain", "urls", "crawling_date"}).
		AddRow("https://shop.example.com", []string{"a", "b"}, now)
	mock.ExpectQuery(`SELECT domain, urls, crawling_date FROM product_urls WHERE domain = \$1`).
		WithArgs("https://shop.example.com").
		WillReturnRows(rows)

	got, err := store.GetDomain(context.Background(), "https://shop.example.com")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, got.URLs)
	require.Equal(t, now, got.CrawlDate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDomainNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT domain, urls, crawling_date FROM product_urls`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetDomain(context.Background(), "missing")
	require.ErrorIs(t, err, crawler.ErrDomainNotFound)
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS product_urls`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewDomainStoreWithPoolValidatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewDomainStoreWithPool(mock, "bad;table")
	require.Error(t, err)
	_, err = NewDomainStoreWithPool(nil, "")
	require.Error(t, err)
	_, err = NewDomainStore(context.Background(), Config{})
	require.Error(t, err)
}
