package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/brandloom/storefront/internal/app/domain/brand"
	"github.com/brandloom/storefront/internal/permissions"
)

type brandRow struct {
	ID            string    `db:"id"`
	Slug          string    `db:"slug"`
	Name          string    `db:"name"`
	Description   string    `db:"description"`
	OwnerID       string    `db:"owner_id"`
	ContactEmail  string    `db:"contact_email"`
	ContactPhone  string    `db:"contact_phone"`
	Status        string    `db:"status"`
	RejectReason  string    `db:"reject_reason"`
	LogoURL       string    `db:"logo_url"`
	PixelID       string    `db:"pixel_id"`
	WhatsAppOptIn bool      `db:"whatsapp_opt_in"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func newBrandRow(b brand.Brand) brandRow {
	return brandRow{
		ID: b.ID, Slug: b.Slug, Name: b.Name, Description: b.Description, OwnerID: b.OwnerID,
		ContactEmail: b.ContactEmail, ContactPhone: b.ContactPhone, Status: string(b.Status),
		RejectReason: b.RejectReason, LogoURL: b.LogoURL, PixelID: b.PixelID,
		WhatsAppOptIn: b.WhatsAppOptIn, CreatedAt: b.CreatedAt, UpdatedAt: b.UpdatedAt,
	}
}

func (r brandRow) toDomain() brand.Brand {
	return brand.Brand{
		ID: r.ID, Slug: r.Slug, Name: r.Name, Description: r.Description, OwnerID: r.OwnerID,
		ContactEmail: r.ContactEmail, ContactPhone: r.ContactPhone, Status: brand.Status(r.Status),
		RejectReason: r.RejectReason, LogoURL: r.LogoURL, PixelID: r.PixelID,
		WhatsAppOptIn: r.WhatsAppOptIn, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

const brandColumns = `id, slug, name, description, owner_id, contact_email, contact_phone, status,
	reject_reason, logo_url, pixel_id, whatsapp_opt_in, created_at, updated_at`

func (s *Store) CreateBrand(ctx context.Context, b brand.Brand) (brand.Brand, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO brands (`+brandColumns+`)
		VALUES (:id, :slug, :name, :description, :owner_id, :contact_email, :contact_phone, :status,
			:reject_reason, :logo_url, :pixel_id, :whatsapp_opt_in, :created_at, :updated_at)
	`, newBrandRow(b))
	if err != nil {
		return brand.Brand{}, mapError(err)
	}
	return b, nil
}

func (s *Store) UpdateBrand(ctx context.Context, b brand.Brand) (brand.Brand, error) {
	existing, err := s.GetBrand(ctx, b.ID)
	if err != nil {
		return brand.Brand{}, err
	}
	b.CreatedAt = existing.CreatedAt
	b.UpdatedAt = time.Now().UTC()

	res, err := s.db.NamedExecContext(ctx, `
		UPDATE brands
		SET slug = :slug, name = :name, description = :description, contact_email = :contact_email,
		    contact_phone = :contact_phone, status = :status, reject_reason = :reject_reason,
		    logo_url = :logo_url, pixel_id = :pixel_id, whatsapp_opt_in = :whatsapp_opt_in,
		    updated_at = :updated_at
		WHERE id = :id
	`, newBrandRow(b))
	if err != nil {
		return brand.Brand{}, mapError(err)
	}
	if err := requireAffected(res); err != nil {
		return brand.Brand{}, err
	}
	return b, nil
}

func (s *Store) GetBrand(ctx context.Context, id string) (brand.Brand, error) {
	var row brandRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+brandColumns+` FROM brands WHERE id = $1`, id); err != nil {
		return brand.Brand{}, mapError(err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetBrandBySlug(ctx context.Context, slug string) (brand.Brand, error) {
	var row brandRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+brandColumns+` FROM brands WHERE slug = $1`, slug); err != nil {
		return brand.Brand{}, mapError(err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListBrands(ctx context.Context, status brand.Status) ([]brand.Brand, error) {
	var rows []brandRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+brandColumns+` FROM brands
		WHERE ($1 = '' OR status = $1)
		ORDER BY name
	`, string(status))
	if err != nil {
		return nil, err
	}
	out := make([]brand.Brand, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// Members ---------------------------------------------------------------------

type memberRow struct {
	BrandID     string    `db:"brand_id"`
	UserID      string    `db:"user_id"`
	Permissions int64     `db:"permissions"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r memberRow) toDomain() brand.Member {
	perms, _ := permissions.FromInt64(r.Permissions)
	return brand.Member{
		BrandID:     r.BrandID,
		UserID:      r.UserID,
		Permissions: perms,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

const memberColumns = `brand_id, user_id, permissions, created_at, updated_at`

func (s *Store) UpsertMember(ctx context.Context, m brand.Member) (brand.Member, error) {
	now := time.Now().UTC()
	var row memberRow
	err := s.db.GetContext(ctx, &row, `
		INSERT INTO brand_members (brand_id, user_id, permissions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (brand_id, user_id) DO UPDATE
		SET permissions = EXCLUDED.permissions, updated_at = EXCLUDED.updated_at
		RETURNING `+memberColumns,
		m.BrandID, m.UserID, m.Permissions.Int64(), now)
	if err != nil {
		return brand.Member{}, mapError(err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetMember(ctx context.Context, brandID, userID string) (brand.Member, error) {
	var row memberRow
	err := s.db.GetContext(ctx, &row, `SELECT `+memberColumns+` FROM brand_members WHERE brand_id = $1 AND user_id = $2`, brandID, userID)
	if err != nil {
		return brand.Member{}, mapError(err)
	}
	return row.toDomain(), nil
}

func (s *Store) listMembers(ctx context.Context, query string, arg string) ([]brand.Member, error) {
	var rows []memberRow
	if err := s.db.SelectContext(ctx, &rows, query, arg); err != nil {
		return nil, err
	}
	out := make([]brand.Member, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) ListMembers(ctx context.Context, brandID string) ([]brand.Member, error) {
	return s.listMembers(ctx, `SELECT `+memberColumns+` FROM brand_members WHERE brand_id = $1 ORDER BY created_at`, brandID)
}

func (s *Store) ListMemberships(ctx context.Context, userID string) ([]brand.Member, error) {
	return s.listMembers(ctx, `SELECT `+memberColumns+` FROM brand_members WHERE user_id = $1 ORDER BY brand_id`, userID)
}

func (s *Store) DeleteMember(ctx context.Context, brandID, userID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM brand_members WHERE brand_id = $1 AND user_id = $2`, brandID, userID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// API keys --------------------------------------------------------------------

type apiKeyRow struct {
	ID          string     `db:"id"`
	BrandID     string     `db:"brand_id"`
	Name        string     `db:"name"`
	Prefix      string     `db:"prefix"`
	Hash        []byte     `db:"hash"`
	Permissions int64      `db:"permissions"`
	CreatedAt   time.Time  `db:"created_at"`
	LastUsedAt  *time.Time `db:"last_used_at"`
	RevokedAt   *time.Time `db:"revoked_at"`
}

func (r apiKeyRow) toDomain() brand.APIKey {
	perms, _ := permissions.FromInt64(r.Permissions)
	return brand.APIKey{
		ID: r.ID, BrandID: r.BrandID, Name: r.Name, Prefix: r.Prefix, Hash: r.Hash,
		Permissions: perms, CreatedAt: r.CreatedAt, LastUsedAt: r.LastUsedAt, RevokedAt: r.RevokedAt,
	}
}

const apiKeyColumns = `id, brand_id, name, prefix, hash, permissions, created_at, last_used_at, revoked_at`

func (s *Store) CreateAPIKey(ctx context.Context, key brand.APIKey) (brand.APIKey, error) {
	if key.ID == "" {
		key.ID = uuid.NewString()
	}
	key.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO brand_api_keys (id, brand_id, name, prefix, hash, permissions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, key.ID, key.BrandID, key.Name, key.Prefix, key.Hash, key.Permissions.Int64(), key.CreatedAt)
	if err != nil {
		return brand.APIKey{}, mapError(err)
	}
	return key, nil
}

func (s *Store) GetAPIKeyByPrefix(ctx context.Context, prefix string) (brand.APIKey, error) {
	var row apiKeyRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+apiKeyColumns+` FROM brand_api_keys WHERE prefix = $1`, prefix); err != nil {
		return brand.APIKey{}, mapError(err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListAPIKeys(ctx context.Context, brandID string) ([]brand.APIKey, error) {
	var rows []apiKeyRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+apiKeyColumns+` FROM brand_api_keys WHERE brand_id = $1 ORDER BY created_at`, brandID); err != nil {
		return nil, err
	}
	out := make([]brand.APIKey, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) RevokeAPIKey(ctx context.Context, brandID, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE brand_api_keys SET revoked_at = $3 WHERE id = $1 AND brand_id = $2`, id, brandID, at)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE brand_api_keys SET last_used_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	return requireAffected(res)
}
