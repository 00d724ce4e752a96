// Package rules загружает версионированные таблицы правил из встроенных JSON-файлов:
// шаблоны текстов уведомлений и карту нормализации кодов таможенных режимов.
package rules

import (
	"embed"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/cts/internal/domain"
)

//go:embed tables/*.json
var tablesFS embed.FS

const (
	templatesFile = "tables/notification_templates.json"
	regimensFile  = "tables/regimens.json"
)

// NotificationTemplate — шаблон заголовка и текста уведомления.
// Поддерживаемые подстановки: {name}, {company}, {days}, {date}.
type NotificationTemplate struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Regimen — каноническое представление таможенного режима.
// Таблица отображает и легаси-опечатки на канонический код.
type Regimen struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// NotificationVars — значения подстановок шаблона уведомления.
type NotificationVars struct {
	Name    string
	Company string
	Days    int
	Date    time.Time
}

// Tables — загруженные таблицы правил. Содержимое неизменяемо после загрузки.
type Tables struct {
	templatesVersion int
	regimensVersion  int
	templates        map[domain.NotificationType]NotificationTemplate
	regimens         map[string]Regimen
}

type templatesPayload struct {
	Version int                             `json:"version"`
	Entries map[string]NotificationTemplate `json:"entries"`
}

type regimensPayload struct {
	Version int                `json:"version"`
	Entries map[string]Regimen `json:"entries"`
}

// Load разбирает встроенные таблицы и валидирует их.
// Ошибка загрузки фатальна: сервис не стартует с битыми таблицами.
func Load() (*Tables, error) {
	var templates templatesPayload
	if err := readTable(templatesFile, &templates); err != nil {
		return nil, err
	}
	var regimens regimensPayload
	if err := readTable(regimensFile, &regimens); err != nil {
		return nil, err
	}

	if templates.Version < 1 {
		return nil, fmt.Errorf("notification template table version must be >= 1, got %d", templates.Version)
	}
	if regimens.Version < 1 {
		return nil, fmt.Errorf("regimen table version must be >= 1, got %d", regimens.Version)
	}

	t := &Tables{
		templatesVersion: templates.Version,
		regimensVersion:  regimens.Version,
		templates:        make(map[domain.NotificationType]NotificationTemplate, len(templates.Entries)),
		regimens:         make(map[string]Regimen, len(regimens.Entries)),
	}

	for key, tpl := range templates.Entries {
		if tpl.Title == "" || tpl.Message == "" {
			return nil, fmt.Errorf("notification template %q: title and message are required", key)
		}
		t.templates[domain.NotificationType(key)] = tpl
	}
	for _, required := range []domain.NotificationType{
		domain.NotificationDocumentExpiring,
		domain.NotificationDocumentExpired,
	} {
		if _, ok := t.templates[required]; !ok {
			return nil, fmt.Errorf("notification template %q is missing", required)
		}
	}

	for alias, regimen := range regimens.Entries {
		if regimen.Code == "" || regimen.Name == "" {
			return nil, fmt.Errorf("regimen %q: code and name are required", alias)
		}
		t.regimens[normalizeRegimenKey(alias)] = regimen
	}
	if len(t.regimens) == 0 {
		return nil, fmt.Errorf("regimen table is empty")
	}

	return t, nil
}

func readTable(name string, dst any) error {
	payload, err := tablesFS.ReadFile(name)
	if err != nil {
		return fmt.Errorf("read rule table %s: %w", name, err)
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("parse rule table %s: %w", name, err)
	}
	return nil
}

// TemplatesVersion возвращает версию таблицы шаблонов уведомлений.
func (t *Tables) TemplatesVersion() int { return t.templatesVersion }

// RegimensVersion возвращает версию таблицы режимов.
func (t *Tables) RegimensVersion() int { return t.regimensVersion }

// NotificationText подставляет значения в шаблон уведомления указанного типа
// и возвращает заголовок и текст.
func (t *Tables) NotificationText(notificationType domain.NotificationType, vars NotificationVars) (string, string, error) {
	tpl, ok := t.templates[notificationType]
	if !ok {
		return "", "", fmt.Errorf("no notification template for type %s", notificationType)
	}

	replacer := strings.NewReplacer(
		"{name}", vars.Name,
		"{company}", vars.Company,
		"{days}", strconv.Itoa(vars.Days),
		"{date}", vars.Date.Format("2006-01-02"),
	)
	return replacer.Replace(tpl.Title), replacer.Replace(tpl.Message), nil
}

// NormalizeRegimen приводит сырой код режима к каноническому виду по таблице.
// Второе значение false означает, что код в таблице не найден; вызывающая
// сторона в этом случае оставляет ввод как есть.
func (t *Tables) NormalizeRegimen(raw string) (Regimen, bool) {
	regimen, ok := t.regimens[normalizeRegimenKey(raw)]
	return regimen, ok
}

func normalizeRegimenKey(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
