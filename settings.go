package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
)

const settingsID = "site-settings"

// Typography holds the font size/weight overrides for the storefront text roles.
type Typography struct {
	CardTitleSize       string `json:"cardTitleSize" default:"17px"`
	CardTitleWeight     string `json:"cardTitleWeight" default:"bold"`
	CardTechniqueSize   string `json:"cardTechniqueSize" default:"10px"`
	CardTechniqueWeight string `json:"cardTechniqueWeight" default:"bold"`
	CardPriceSize       string `json:"cardPriceSize" default:"18px"`
	CardPriceWeight     string `json:"cardPriceWeight" default:"bold"`
	CardDetailSize      string `json:"cardDetailSize" default:"10px"`
	CardDetailWeight    string `json:"cardDetailWeight" default:"bold"`
	DetailTitleSize     string `json:"detailTitleSize" default:"48px"`
	DetailTitleWeight   string `json:"detailTitleWeight" default:"extrabold"`
	DetailPriceSize     string `json:"detailPriceSize" default:"30px"`
	DetailPriceWeight   string `json:"detailPriceWeight" default:"bold"`
}

// Settings is the single site-settings record.
type Settings struct {
	LogoURL      *string `json:"url"`
	LogoPublicID string  `json:"-"`
	LogoText     string  `json:"logoText" default:"STUDIO"`
	ShowBoth     bool    `json:"showBoth"`
	Typography
}

// HasLogo reports whether a logo image is configured.
func (s Settings) HasLogo() bool { return s.LogoURL != nil && *s.LogoURL != "" }

// setDefaults fills the empty fields of v from its default tags.
func setDefaults(v any) {
	if err := defaults.Set(v); err != nil {
		// only fails on malformed tags
		panic(fmt.Sprintf("settings defaults: %v", err))
	}
}

// withDefaults fills empty typography values. LogoText is kept as stored:
// an empty text is a valid choice once the record exists.
func (s Settings) withDefaults() Settings {
	setDefaults(&s.Typography)
	return s
}

func defaultSettings() Settings {
	var s Settings
	setDefaults(&s)
	return s
}

// typographyColumns maps request keys to columns and struct fields.
var typographyColumns = []struct {
	key    string
	column string
	field  func(*Typography) *string
}{
	{"cardTitleSize", "card_title_size", func(t *Typography) *string { return &t.CardTitleSize }},
	{"cardTitleWeight", "card_title_weight", func(t *Typography) *string { return &t.CardTitleWeight }},
	{"cardTechniqueSize", "card_technique_size", func(t *Typography) *string { return &t.CardTechniqueSize }},
	{"cardTechniqueWeight", "card_technique_weight", func(t *Typography) *string { return &t.CardTechniqueWeight }},
	{"cardPriceSize", "card_price_size", func(t *Typography) *string { return &t.CardPriceSize }},
	{"cardPriceWeight", "card_price_weight", func(t *Typography) *string { return &t.CardPriceWeight }},
	{"cardDetailSize", "card_detail_size", func(t *Typography) *string { return &t.CardDetailSize }},
	{"cardDetailWeight", "card_detail_weight", func(t *Typography) *string { return &t.CardDetailWeight }},
	{"detailTitleSize", "detail_title_size", func(t *Typography) *string { return &t.DetailTitleSize }},
	{"detailTitleWeight", "detail_title_weight", func(t *Typography) *string { return &t.DetailTitleWeight }},
	{"detailPriceSize", "detail_price_size", func(t *Typography) *string { return &t.DetailPriceSize }},
	{"detailPriceWeight", "detail_price_weight", func(t *Typography) *string { return &t.DetailPriceWeight }},
}

// Image is a hosted asset: its public URL and the handle used to delete it.
type Image struct {
	URL      string `json:"url"`
	PublicID string `json:"publicId"`
}

// SettingsPatch carries the field groups of a settings write. Nil or empty
// members leave the stored values alone.
type SettingsPatch struct {
	LogoText   *string
	ShowBoth   *bool
	Typography map[string]string
	Logo       *Image
	ClearLogo  bool
}

// forNewRecord drops an empty LogoText so a record created by this patch
// starts with the default text.
func (p *SettingsPatch) forNewRecord() {
	if p.LogoText != nil && *p.LogoText == "" {
		p.LogoText = nil
	}
}

func (p SettingsPatch) empty() bool {
	return p.LogoText == nil && p.ShowBoth == nil && len(p.Typography) == 0 && p.Logo == nil && !p.ClearLogo
}

func (p SettingsPatch) apply(s *Settings) {
	if p.LogoText != nil {
		s.LogoText = *p.LogoText
	}
	if p.ShowBoth != nil {
		s.ShowBoth = *p.ShowBoth
	}
	for _, col := range typographyColumns {
		if v, ok := p.Typography[col.key]; ok {
			*col.field(&s.Typography) = v
		}
	}
	if p.ClearLogo {
		s.LogoURL, s.LogoPublicID = nil, ""
	}
	if p.Logo != nil {
		u := p.Logo.URL
		s.LogoURL, s.LogoPublicID = &u, p.Logo.PublicID
	}
}

// sqlSettingsStore keeps the settings row in the products database.
type sqlSettingsStore struct {
	db  *sql.DB
	d   dialect
	now func() time.Time
}

func newSQLSettingsStore(db *sql.DB, d dialect) *sqlSettingsStore {
	return &sqlSettingsStore{db: db, d: d, now: time.Now}
}

func selectSettingsSQL() string {
	cols := []string{"logo_url", "logo_public_id", "logo_text", "show_both"}
	for _, c := range typographyColumns {
		cols = append(cols, c.column)
	}
	return "SELECT " + strings.Join(cols, ", ") + " FROM settings WHERE id = ?"
}

func (d dialect) seedSettingsSQL() string {
	if d == dialectPostgres {
		return `INSERT INTO settings (id, logo_text) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`
	}
	return `INSERT IGNORE INTO settings (id, logo_text) VALUES (?, ?)`
}

// GetSettings returns the stored record, or defaults when none was written yet.
func (s *sqlSettingsStore) GetSettings(ctx context.Context) (Settings, error) {
	return s.get(ctx, s.db)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *sqlSettingsStore) get(ctx context.Context, q queryRower) (Settings, error) {
	var (
		logoURL, publicID, text sql.NullString
		showBoth                sql.NullBool
		typo                    = make([]sql.NullString, len(typographyColumns))
	)
	dest := []any{&logoURL, &publicID, &text, &showBoth}
	for i := range typo {
		dest = append(dest, &typo[i])
	}
	err := q.QueryRowContext(ctx, s.d.rebind(selectSettingsSQL()), settingsID).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return defaultSettings(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("scan settings: %w", err)
	}

	var out Settings
	if logoURL.Valid && logoURL.String != "" {
		u := logoURL.String
		out.LogoURL = &u
	}
	out.LogoPublicID = publicID.String
	out.LogoText = text.String
	if !text.Valid {
		out.LogoText = defaultSettings().LogoText
	}
	out.ShowBoth = showBoth.Bool
	for i, col := range typographyColumns {
		*col.field(&out.Typography) = typo[i].String
	}
	return out.withDefaults(), nil
}

// UpdateSettings merges p into the record, creating it on first write.
func (s *sqlSettingsStore) UpdateSettings(ctx context.Context, p SettingsPatch) (Settings, error) {
	var out Settings
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.d.seedSettingsSQL(), settingsID, defaultSettings().LogoText)
		if err != nil {
			return fmt.Errorf("seed settings: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			p.forNewRecord()
		}
		q, args := s.updateSQL(p)
		if _, err := tx.ExecContext(ctx, s.d.rebind(q), args...); err != nil {
			return fmt.Errorf("update settings: %w", err)
		}
		out, err = s.get(ctx, tx)
		return err
	})
	return out, err
}

func (s *sqlSettingsStore) updateSQL(p SettingsPatch) (string, []any) {
	setCols := []string{}
	args := []any{}
	if p.LogoText != nil {
		setCols = append(setCols, "logo_text = ?")
		args = append(args, *p.LogoText)
	}
	if p.ShowBoth != nil {
		setCols = append(setCols, "show_both = ?")
		args = append(args, *p.ShowBoth)
	}
	for _, col := range typographyColumns {
		if v, ok := p.Typography[col.key]; ok {
			setCols = append(setCols, col.column+" = ?")
			args = append(args, v)
		}
	}
	if p.ClearLogo && p.Logo == nil {
		setCols = append(setCols, "logo_url = ?", "logo_public_id = ?")
		args = append(args, nil, nil)
	}
	if p.Logo != nil {
		setCols = append(setCols, "logo_url = ?", "logo_public_id = ?")
		args = append(args, p.Logo.URL, sqlNullString(p.Logo.PublicID))
	}
	setCols = append(setCols, "updated_at = ?")
	args = append(args, s.now().UTC(), settingsID)
	return "UPDATE settings SET " + strings.Join(setCols, ", ") + " WHERE id = ?", args
}
