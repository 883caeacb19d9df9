package config

import "time"

// Task names used in the scheduler table.
const (
	TaskChecker        = "checker"
	TaskSQLMaintenance = "sql_maintenance"
)

// MessagesConfig holds every user facing text. Fields ending in a format
// verb are used with fmt.Sprintf.
type MessagesConfig struct {
	Welcome          string `mapstructure:"welcome"`
	Help             string `mapstructure:"help"`
	SubscribeFormat  string `mapstructure:"subscribe_format"`
	TooFewArgs       string `mapstructure:"too_few_args"`
	PointNotFound    string `mapstructure:"point_not_found"`
	BadDate          string `mapstructure:"bad_date"`
	BadTime          string `mapstructure:"bad_time"`
	UnknownUser      string `mapstructure:"unknown_user"`
	Subscribed       string `mapstructure:"subscribed"`
	UnsubscribeUsage string `mapstructure:"unsubscribe_usage"`
	BadID            string `mapstructure:"bad_id"`
	Unsubscribed     string `mapstructure:"unsubscribed"`
	SubNotFound      string `mapstructure:"sub_not_found"`
	UnsubscribedAll  string `mapstructure:"unsubscribed_all"`
	NoSubs           string `mapstructure:"no_subs"`
	NoPoints         string `mapstructure:"no_points"`
	PointsHeader     string `mapstructure:"points_header"`
	NoChecksYet      string `mapstructure:"no_checks_yet"`
	LastCheck        string `mapstructure:"last_check"`
	StatusHeader     string `mapstructure:"status_header"`
	UpdateHeader     string `mapstructure:"update_header"`
	PeriodicHeader   string `mapstructure:"periodic_header"`
	GeneralError     string `mapstructure:"general_error"`
}

// CommandsConfig holds the descriptions shown in the Telegram command menu.
type CommandsConfig struct {
	Start       string `mapstructure:"start"`
	Help        string `mapstructure:"help"`
	Points      string `mapstructure:"points"`
	Subscribe   string `mapstructure:"subscribe"`
	Unsubscribe string `mapstructure:"unsubscribe"`
	Subs        string `mapstructure:"subs"`
	Status      string `mapstructure:"status"`
}

const helpText = "Команды:\n" +
	"/subscribe <date> <from> <to> <fromHH:MM> <toHH:MM>\n" +
	"  где <from>/<to> — ЛИБО id (например 78/2), ЛИБО имя точки (Vilnius/Minsk)\n" +
	"  пример: /subscribe 01.09.2025 78 2 20:00 23:00\n" +
	"          /subscribe 01.09.2025 Vilnius Minsk 20:00 23:00\n" +
	"/subs — список подписок\n" +
	"/status — когда был последний сниф и какие были сохранённые результаты\n" +
	"/unsubscribe <id> — удалить подписку (или all — удалить все)\n" +
	"/points [query] — показать доступные точки (или поиск)\n"

// Defaults returns a configuration with every optional value filled in.
func Defaults() *Config {
	return &Config{
		Logger: LoggerConfig{
			Level: "info",
			File:  "./bot.log",
		},
		Database: DatabaseConfig{
			Path: "./subs.db",
		},
		Infobus: InfobusConfig{
			BaseURL:      "https://infobus.eu",
			UserAgent:    "Mozilla/5.0",
			Timeout:      20 * time.Second,
			MaxRetries:   4,
			BackoffBase:  time.Second,
			ClockSkew:    60 * time.Second,
			ScreenWidth:  2560,
			ScreenHeight: 1305,
			CacheTTL:     60 * time.Second,
			CacheSize:    128,
		},
		Checker: CheckerConfig{
			IntervalSec:    120,
			ReportEverySec: 1800,
			Concurrency:    1,
		},
		Scheduler: SchedulerConfig{
			Tasks: map[string]TaskConfig{
				TaskChecker:        {Enabled: true, StartImmediately: true},
				TaskSQLMaintenance: {Enabled: true, Schedule: "0 0 4 * * *"},
			},
		},
		Messages: MessagesConfig{
			Welcome:          "Привет! Я бот для слежения за билетами.\n" + helpText,
			Help:             helpText,
			SubscribeFormat:  "Формат:\n" + helpText,
			TooFewArgs:       "Мало аргументов. Пример: /subscribe 01.09.2025 78 2 20:00 23:00",
			PointNotFound:    "Не нашёл такую точку: %s\nПодсказка: /points для списка точек.",
			BadDate:          "Неверная дата: %s. Формат: ДД.ММ.ГГГГ, например 01.09.2025",
			BadTime:          "Неверное время: %s. Формат: ЧЧ:ММ, например 20:00",
			UnknownUser:      "Не могу определить твоего пользователя.",
			Subscribed:       "✅ Подписка #%d добавлена:\n%s",
			UnsubscribeUsage: "Укажи ID: /unsubscribe <id>",
			BadID:            "ID должен быть числом.",
			Unsubscribed:     "🗑 Подписка #%d удалена.",
			SubNotFound:      "Не нашёл такую подписку.",
			UnsubscribedAll:  "🗑 Удалено подписок: %d.",
			NoSubs:           "Подписок нет.",
			NoPoints:         "Ничего не нашёл. Попробуй /points без параметров.",
			PointsHeader:     "Доступные точки:",
			NoChecksYet:      "Пока ни одной проверки не было.",
			LastCheck:        "Последняя проверка: %s\nВсего проверок: %s",
			StatusHeader:     "Последние сохранённые результаты по твоим подпискам:",
			UpdateHeader:     "⚡️ Обновление",
			PeriodicHeader:   "⏱ Периодический отчёт",
			GeneralError:     "❌ Что-то пошло не так. Попробуй позже.",
		},
		Commands: CommandsConfig{
			Start:       "Начать работу с ботом",
			Help:        "Список команд",
			Points:      "Доступные точки или поиск",
			Subscribe:   "Подписаться на рейсы",
			Unsubscribe: "Удалить подписку",
			Subs:        "Мои подписки",
			Status:      "Статус проверок",
		},
	}
}
