package ui

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/skalibog/volflow/internal/config"
	"github.com/skalibog/volflow/internal/render"
	"github.com/skalibog/volflow/pkg/logger"
	"github.com/skalibog/volflow/pkg/models"
)

const maxLogLines = 50

// Стили UI
var (
	// Основные цвета
	primaryColor   = lipgloss.Color("#0077cc")
	secondaryColor = lipgloss.Color("#333333")
	errorColor     = lipgloss.Color("#cc3300")
	successColor   = lipgloss.Color("#33cc33")
	warningColor   = lipgloss.Color("#cccc00")
	mutedColor     = lipgloss.Color("#999999")

	appStyle = lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor)
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(primaryColor).
			Padding(0, 1).
			Align(lipgloss.Center)
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(secondaryColor).
			Padding(0, 1)
	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(secondaryColor).
			Padding(0, 1)
	footerStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Padding(0, 1)
)

var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// TermUI терминальная панель: последняя запись по символу, уведомления, лог
type TermUI struct {
	config  config.UIConfig
	logFile string
	program *tea.Program

	mu            sync.RWMutex
	records       map[string]models.SignalRecord
	alerts        []models.Alert
	logs          []string
	selectedIndex int
	width         int
	height        int
}

// Сообщения для обновления UI
type refreshMsg struct{}

// bubbleModel - модель для bubbletea
type bubbleModel struct {
	ui *TermUI
}

// NewTermUI создает панель. logFile - JSON лог, хвост которого показывается внизу
func NewTermUI(cfg config.UIConfig, logFile string) *TermUI {
	if cfg.MaxAlerts <= 0 {
		cfg.MaxAlerts = 10
	}
	if cfg.RefreshRate <= 0 {
		cfg.RefreshRate = 500
	}
	return &TermUI{
		config:  cfg,
		logFile: logFile,
		records: make(map[string]models.SignalRecord),
		logs:    []string{"VolumeFlow запущен. Ожидание данных..."},
		width:   120,
		height:  40,
	}
}

// Start запускает панель и блокируется до выхода пользователя или отмены ctx
func (ui *TermUI) Start(ctx context.Context) error {
	if err := ui.loadLogsFromFile(); err != nil {
		ui.appendLog(fmt.Sprintf("Ошибка загрузки логов: %v", err))
	}

	ui.mu.Lock()
	ui.program = tea.NewProgram(bubbleModel{ui: ui}, tea.WithAltScreen(), tea.WithContext(ctx))
	program := ui.program
	ui.mu.Unlock()

	go ui.tailLogs(ctx)

	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("ошибка запуска UI: %w", err)
	}
	return nil
}

func (ui *TermUI) tailLogs(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(ui.config.RefreshRate) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ui.loadLogsFromFile(); err != nil {
				logger.Warn("Ошибка загрузки логов", zap.Error(err))
			}
			ui.refresh()
		}
	}
}

// UpdateRecord запоминает последнюю запись символа
func (ui *TermUI) UpdateRecord(rec models.SignalRecord) {
	ui.mu.Lock()
	ui.records[rec.Symbol] = rec
	ui.mu.Unlock()
	ui.refresh()
}

// HandleRecord реализует получателя записей
func (ui *TermUI) HandleRecord(_ context.Context, rec models.SignalRecord) error {
	ui.UpdateRecord(rec)
	return nil
}

// Notify добавляет уведомление в ленту
func (ui *TermUI) Notify(_ context.Context, a models.Alert) error {
	ui.mu.Lock()
	ui.alerts = append(ui.alerts, a)
	if len(ui.alerts) > ui.config.MaxAlerts {
		ui.alerts = ui.alerts[len(ui.alerts)-ui.config.MaxAlerts:]
	}
	ui.mu.Unlock()
	ui.refresh()
	return nil
}

func (ui *TermUI) refresh() {
	ui.mu.RLock()
	program := ui.program
	ui.mu.RUnlock()
	if program != nil {
		program.Send(refreshMsg{})
	}
}

func (ui *TermUI) appendLog(line string) {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	ui.logs = append(ui.logs, line)
	if len(ui.logs) > maxLogLines {
		ui.logs = ui.logs[len(ui.logs)-maxLogLines:]
	}
}

// loadLogsFromFile перечитывает хвост JSON лога
func (ui *TermUI) loadLogsFromFile() error {
	if ui.logFile == "" {
		return nil
	}
	file, err := os.Open(ui.logFile)
	if err != nil {
		if os.IsNotExist(err) {
			// Файл не существует, это не ошибка
			return nil
		}
		return err
	}
	defer file.Close()

	var logs []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		logs = append(logs, formatLogLine(scanner.Text()))
		if len(logs) > maxLogLines {
			logs = logs[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	if len(logs) > 0 {
		ui.mu.Lock()
		ui.logs = logs
		ui.mu.Unlock()
	}
	return nil
}

// formatLogLine превращает JSON запись zap в строку "[15:04:05] [INFO] msg (k: v)"
func formatLogLine(line string) string {
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		// Не JSON - показываем как есть
		return line
	}

	level, _ := entry["level"].(string)
	ts, _ := entry["ts"].(string)
	msg, _ := entry["msg"].(string)
	level = ansiRegex.ReplaceAllString(level, "")

	timestamp := ""
	if t, err := time.Parse(logger.TimeLayout, ts); err == nil {
		timestamp = t.Format("15:04:05")
	}

	keys := make([]string, 0, len(entry))
	for k := range entry {
		switch k {
		case "level", "ts", "msg", "caller":
		default:
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] [%s] %s", timestamp, level, msg)
	for _, k := range keys {
		fmt.Fprintf(&b, " (%s: %v)", k, entry[k])
	}
	return b.String()
}

// Методы для bubbletea
func (m bubbleModel) Init() tea.Cmd {
	return nil
}

func (m bubbleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up":
			m.ui.mu.Lock()
			m.ui.selectedIndex = max(0, m.ui.selectedIndex-1)
			m.ui.mu.Unlock()
		case "down":
			m.ui.mu.Lock()
			m.ui.selectedIndex = max(0, min(len(m.ui.records)-1, m.ui.selectedIndex+1))
			m.ui.mu.Unlock()
		case "r":
			if err := m.ui.loadLogsFromFile(); err != nil {
				m.ui.appendLog(fmt.Sprintf("Ошибка загрузки логов: %v", err))
			}
		}

	case tea.WindowSizeMsg:
		m.ui.mu.Lock()
		m.ui.width = msg.Width
		m.ui.height = msg.Height
		m.ui.mu.Unlock()

	case refreshMsg:
		// Просто обновляем UI
	}

	return m, nil
}

func (m bubbleModel) View() string {
	m.ui.mu.RLock()
	defer m.ui.mu.RUnlock()

	title := titleStyle.Render("VolumeFlow - всплески объема и трейлинг-стоп")
	footer := footerStyle.Render("Клавиши: ↑/↓ - навигация, R - перезагрузить логи, Q - выход")

	return appStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			title,
			"\n",
			renderRecordsSection(m.ui.records, m.ui.selectedIndex),
			"\n",
			renderAlertsSection(m.ui.alerts),
			"\n",
			renderLogsSection(m.ui.logs, logRows(m.ui.height)),
			"\n",
			footer,
		),
	)
}

// logRows сколько строк лога помещается под остальными секциями
func logRows(height int) int {
	return max(6, height-30)
}

func renderRecordsSection(records map[string]models.SignalRecord, selectedIndex int) string {
	header := headerStyle.Render("СИГНАЛЫ")
	var content strings.Builder

	symbols := sortedSymbols(records)
	if len(symbols) == 0 {
		content.WriteString("  Ожидание данных...\n")
	}
	for i, symbol := range symbols {
		line := "  " + formatRecordLine(records[symbol])
		if i == selectedIndex {
			line = "> " + line[2:]
			line = lipgloss.NewStyle().Background(lipgloss.Color("#222222")).Render(line)
		}
		content.WriteString(line + "\n")
	}

	return sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, content.String()))
}

func formatRecordLine(rec models.SignalRecord) string {
	state := "закрыт"
	if !rec.Final {
		state = "открыт"
	}
	stop := "-"
	if rec.StopLevel != nil {
		stop = fmt.Sprintf("%.2f", render.RoundToTick(*rec.StopLevel, rec.TickSize))
	}
	spike := ""
	if rec.IsSpike {
		spike = " ⚡"
	}
	return fmt.Sprintf("%s #%d [%s] %s%s  %s  тренд: %s  стоп: %s  цена: %.2f",
		rec.Symbol, rec.BarIndex, state,
		formatClassification(rec.Classification), spike,
		render.VolumeLabel(rec, false),
		formatTrend(rec.Trend), stop, rec.Close)
}

func renderAlertsSection(alerts []models.Alert) string {
	header := headerStyle.Render("УВЕДОМЛЕНИЯ")
	var content strings.Builder

	if len(alerts) == 0 {
		content.WriteString("  Нет уведомлений\n")
	}
	// Новые сверху
	for i := len(alerts) - 1; i >= 0; i-- {
		content.WriteString("  " + formatAlertLine(alerts[i]) + "\n")
	}

	return sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, content.String()))
}

func formatAlertLine(a models.Alert) string {
	style := lipgloss.NewStyle().Foreground(warningColor)
	switch a.Classification {
	case models.Bullish:
		style = lipgloss.NewStyle().Foreground(successColor)
	case models.Bearish:
		style = lipgloss.NewStyle().Foreground(errorColor)
	}
	if a.Severity != models.SeverityLow {
		style = style.Bold(true)
	}
	return fmt.Sprintf("%s %s %s @ %.2f",
		a.Timestamp.Format("15:04"), a.Symbol, style.Render(a.Message), a.Price)
}

func renderLogsSection(logs []string, rows int) string {
	header := headerStyle.Render("ЛОГИ")
	var content strings.Builder

	start := max(0, len(logs)-rows)
	for _, line := range logs[start:] {
		// Выделение по уровню логирования
		switch {
		case strings.Contains(line, "[ERROR]"):
			line = lipgloss.NewStyle().Foreground(errorColor).Render(line)
		case strings.Contains(line, "[WARN]"):
			line = lipgloss.NewStyle().Foreground(warningColor).Render(line)
		case strings.Contains(line, "[INFO]"):
			line = lipgloss.NewStyle().Foreground(successColor).Render(line)
		case strings.Contains(line, "[DEBUG]"):
			line = lipgloss.NewStyle().Foreground(lipgloss.Color("#9999ff")).Render(line)
		}
		content.WriteString("  " + line + "\n")
	}

	return sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, content.String()))
}

func formatClassification(c models.Classification) string {
	switch c {
	case models.Bullish:
		return lipgloss.NewStyle().Foreground(successColor).Bold(true).Render("ПОКУПКА")
	case models.Bearish:
		return lipgloss.NewStyle().Foreground(errorColor).Bold(true).Render("ПРОДАЖА")
	default:
		return lipgloss.NewStyle().Foreground(mutedColor).Render("нет сигнала")
	}
}

func formatTrend(t models.Trend) string {
	if t == models.TrendDown {
		return lipgloss.NewStyle().Foreground(errorColor).Render("▼")
	}
	return lipgloss.NewStyle().Foreground(successColor).Render("▲")
}

func sortedSymbols(records map[string]models.SignalRecord) []string {
	symbols := make([]string, 0, len(records))
	for symbol := range records {
		symbols = append(symbols, symbol)
	}
	slices.Sort(symbols)
	return symbols
}
