package services

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"text/template"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"gopkg.in/yaml.v3"

	"greendrake/marketdesk/internal/apperrors"
	"greendrake/marketdesk/internal/models"
)

//go:embed templates/notifications.yaml
var defaultTemplatesYAML []byte

// DefaultLocale is used when a template has no variant for the requested locale.
const DefaultLocale = "en-US"

// IEmailTemplateService defines the interface for email template operations.
type IEmailTemplateService interface {
	GetTemplate(ctx context.Context, templateID, locale string) (*models.EmailTemplate, error)
	Render(ctx context.Context, templateID, locale string, data map[string]string) (subject, body string, err error)
}

const emailTemplatesCollection = "email_templates"

type templateKey struct {
	id     string
	locale string
}

// EmailTemplateService handles operations related to email templates
type EmailTemplateService struct {
	db       *mongo.Database
	defaults map[templateKey]models.EmailTemplate
}

// NewEmailTemplateService creates a new instance of EmailTemplateService
func NewEmailTemplateService(db *mongo.Database) (*EmailTemplateService, error) {
	defaults, err := parseTemplates(defaultTemplatesYAML)
	if err != nil {
		return nil, fmt.Errorf("built-in templates: %w", err)
	}
	return &EmailTemplateService{db: db, defaults: defaults}, nil
}

func parseTemplates(src []byte) (map[templateKey]models.EmailTemplate, error) {
	var list []models.EmailTemplate
	if err := yaml.Unmarshal(src, &list); err != nil {
		return nil, err
	}
	out := make(map[templateKey]models.EmailTemplate, len(list))
	for _, t := range list {
		if t.TemplateID == "" || t.Locale == "" {
			return nil, fmt.Errorf("template without id or locale: %+v", t)
		}
		out[templateKey{t.TemplateID, t.Locale}] = t
	}
	return out, nil
}

// GetTemplate looks the template up in the database first, then among the
// built-ins. Both are tried for the requested locale before DefaultLocale.
func (s *EmailTemplateService) GetTemplate(ctx context.Context, templateID string, locale string) (*models.EmailTemplate, error) {
	locales := []string{locale}
	if locale != DefaultLocale {
		locales = append(locales, DefaultLocale)
	}

	collection := s.db.Collection(emailTemplatesCollection)
	for _, loc := range locales {
		var tmpl models.EmailTemplate
		err := collection.FindOne(ctx, bson.M{"template_id": templateID, "locale": loc}).Decode(&tmpl)
		if err == nil {
			return &tmpl, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("failed to get email template %s/%s: %w", templateID, loc, err)
		}
		if def, ok := s.defaults[templateKey{templateID, loc}]; ok {
			return &def, nil
		}
	}
	return nil, apperrors.NotFound("email template %s for locale %s", templateID, locale)
}

// Render executes the subject and body of a template against data. Missing
// keys render as empty strings.
func (s *EmailTemplateService) Render(ctx context.Context, templateID, locale string, data map[string]string) (string, string, error) {
	tmpl, err := s.GetTemplate(ctx, templateID, locale)
	if err != nil {
		return "", "", err
	}
	subject, err := execute(templateID+".subject", tmpl.Subject, data)
	if err != nil {
		return "", "", err
	}
	body, err := execute(templateID+".body", tmpl.Body, data)
	if err != nil {
		return "", "", err
	}
	return subject, body, nil
}

func execute(name, src string, data map[string]string) (string, error) {
	t, err := template.New(name).Option("missingkey=zero").Parse(src)
	if err != nil {
		return "", fmt.Errorf("parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template %s: %w", name, err)
	}
	return buf.String(), nil
}
