package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/luchaneitor/tecnoacceso-web/internal/catalog"
	"github.com/luchaneitor/tecnoacceso-web/internal/config"
	"github.com/luchaneitor/tecnoacceso-web/internal/device"
	"github.com/luchaneitor/tecnoacceso-web/internal/records"
	"github.com/luchaneitor/tecnoacceso-web/pkg/logger"
)

// RunCommand starts one panel "tab": the interactive control loop over the
// device session and the live feeds.
func RunCommand(cfg *config.Config) error {
	app, err := NewApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.Engine.Start(ctx); err != nil {
		return err
	}

	if app.Device != nil {
		app.Device.Start()
		go consumeDeviceEvents(app)
	} else {
		fmt.Println("No bridge configured (TECNOACCESO_BRIDGE_URL); commands run in simulation mode.")
	}

	fmt.Printf("Panel ready. Operator: %s (%s). Type 'help' for commands.\n",
		app.Session.DisplayName, app.Session.Role)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd := strings.ToLower(fields[0])

		switch cmd {
		case "help":
			printHelp()
		case "quit", "exit":
			return nil
		case "status":
			printStatus(app)
		case "connect":
			doConnect(ctx, app)
		case "disconnect":
			if app.Device == nil {
				fmt.Println("No bridge configured.")
				continue
			}
			app.Device.Disconnect()
		case "a", "b", "c", "d", "e":
			sendCode(app, catalog.Code(strings.ToUpper(cmd)))
		case "emergency":
			triggerEmergency(app)
		case "alerts":
			printAlerts(app)
		case "read":
			markRead(ctx, app, fields[1:])
		case "feed":
			printFeed(app)
		default:
			fmt.Printf("Unknown command %q. Type 'help' for commands.\n", cmd)
		}
	}
}

func printHelp() {
	fmt.Println(`Commands:
  connect           discover and connect the actuator
  disconnect        drop the connection
  a | b | c | d | e send a movement command
  emergency         emergency stop (sends C, raises an emergency alert)
  status            connection state
  alerts            list unread alerts
  read <n> | all    acknowledge alert n (from 'alerts') or all
  feed              activity and log feeds (admin only)
  quit              exit`)
}

func doConnect(ctx context.Context, app *App) {
	if app.Device == nil {
		fmt.Println("No bridge configured.")
		return
	}
	fmt.Println("Connecting...")
	if err := app.Device.Connect(ctx); err != nil {
		var derr *device.Error
		if errors.As(err, &derr) {
			fmt.Println(derr.StatusText())
		} else {
			fmt.Printf("Connect failed: %v\n", err)
		}
		return
	}
	fmt.Printf("Connected to %s\n", app.Device.Status().Handle.Name)
}

func printStatus(app *App) {
	if app.Device == nil {
		fmt.Println("Simulation mode (no bridge).")
		return
	}
	st := app.Device.Status()
	fmt.Printf("State: %s", st.State)
	if st.Handle.Name != "" {
		fmt.Printf("  Device: %s", st.Handle.Name)
	}
	if st.LastError != nil {
		fmt.Printf("  Last error: %s", st.LastError.StatusText())
	}
	fmt.Println()
}

// sendCode issues one command. When no device is connected the catalog's
// simulated response is shown, and the activity is recorded either way.
func sendCode(app *App, code catalog.Code) {
	entry := catalog.Lookup(code)

	simulated := true
	if app.Device != nil {
		accepted, err := app.Device.SendCommand(string(code))
		if err == nil && accepted {
			simulated = false
		}
	}

	app.Ledger.RecordActivity(records.Activity{
		Operator:     app.Session.Username,
		OperatorName: app.Session.DisplayName,
		Dependency:   app.Session.Dependency,
		Action:       entry.Description,
		Command:      string(code),
	})

	var detail json.RawMessage
	if simulated {
		detail = json.RawMessage(`{"simulated":true}`)
	}
	app.Ledger.RecordLog(records.Log{
		Action:   entry.Response,
		Category: records.CategoryMovement,
		Detail:   detail,
		Operator: app.Session.Username,
		Outcome:  string(entry.Outcome),
	})
	app.Engine.Kick()

	fmt.Println(entry.Response)
}

func triggerEmergency(app *App) {
	sendCode(app, catalog.EmergencyCode)

	_, err := app.Ledger.RecordAlert(records.Alert{
		Message:      fmt.Sprintf("Emergency stop triggered by %s", app.Session.DisplayName),
		Kind:         records.AlertEmergency,
		Priority:     records.PriorityHigh,
		Operator:     app.Session.Username,
		OperatorName: app.Session.DisplayName,
	})
	if err != nil {
		logger.Warnf("emergency alert not recorded: %v", err)
	}
	app.Engine.Kick()
}

func printAlerts(app *App) {
	view := app.Engine.Current()
	if len(view.Alerts) == 0 {
		fmt.Println("No alerts.")
		return
	}
	for i, a := range view.Alerts {
		flag := " "
		if !a.Read {
			flag = "*"
		}
		fmt.Printf("%s %2d. [%s/%s] %s (%s)\n",
			flag, i+1, a.Kind, a.Priority, a.Message, a.Timestamp.Format("15:04:05"))
	}
	fmt.Printf("%d unread\n", view.Unread)
}

func markRead(ctx context.Context, app *App, args []string) {
	if len(args) == 0 {
		fmt.Println("Usage: read <n> | read all")
		return
	}
	if args[0] == "all" {
		n := app.Engine.MarkAllRead(ctx)
		fmt.Printf("%d alerts acknowledged\n", n)
		return
	}
	idx, err := strconv.Atoi(args[0])
	view := app.Engine.Current()
	if err != nil || idx < 1 || idx > len(view.Alerts) {
		fmt.Println("Usage: read <n> | read all")
		return
	}
	if app.Engine.MarkRead(ctx, view.Alerts[idx-1].Key()) {
		fmt.Println("Acknowledged.")
	} else {
		fmt.Println("Already read.")
	}
}

func printFeed(app *App) {
	if !app.Session.IsAdmin() {
		fmt.Println("Feeds are available to admin sessions only.")
		return
	}
	view := app.Engine.Current()

	fmt.Println("Recent activity:")
	if len(view.Activities) == 0 {
		fmt.Println("  (none)")
	}
	for _, a := range view.Activities {
		name := a.OperatorName
		if name == "" {
			name = a.Operator
		}
		fmt.Printf("  %s  %-14s %s\n", a.Timestamp.Format("15:04:05"), name, a.Action)
	}

	fmt.Println("System log:")
	if len(view.Logs) == 0 {
		fmt.Println("  (none)")
	}
	for _, l := range view.Logs {
		fmt.Printf("  %s  [%s/%s] %s\n", l.Timestamp.Format("15:04:05"), l.Category, l.Outcome, l.Action)
	}
}

// consumeDeviceEvents mirrors connection lifecycle events into the ledger.
func consumeDeviceEvents(app *App) {
	for ev := range app.Device.Events() {
		switch ev.Type {
		case device.EventConnected:
			app.Ledger.RecordLog(records.Log{
				Action:   fmt.Sprintf("Device connected: %s", ev.Handle.Name),
				Category: records.CategoryBluetooth,
				Operator: app.Session.Username,
				Outcome:  records.OutcomeSuccess,
			})
		case device.EventDisconnected:
			app.Ledger.RecordLog(records.Log{
				Action:   fmt.Sprintf("Device disconnected (%s)", ev.Reason),
				Category: records.CategoryBluetooth,
				Operator: app.Session.Username,
				Outcome:  records.OutcomeWarning,
			})
		case device.EventFault:
			app.Ledger.RecordLog(records.Log{
				Action:   ev.Err.StatusText(),
				Category: records.CategoryBluetooth,
				Operator: app.Session.Username,
				Outcome:  records.OutcomeFailure,
			})
			fmt.Printf("\n%s\n> ", ev.Err.StatusText())
		}
		app.Engine.Kick()
	}
}
