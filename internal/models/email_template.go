package models

// EmailTemplate is a notification template. Subject and Body are
// text/template sources rendered with the event data.
type EmailTemplate struct {
	Base       `bson:",inline" yaml:"-"`
	TemplateID string `bson:"template_id" json:"template_id" yaml:"template_id"`
	Locale     string `bson:"locale" json:"locale" yaml:"locale"`
	Subject    string `bson:"subject" json:"subject" yaml:"subject"`
	Body       string `bson:"body" json:"body" yaml:"body"`
}
