package main

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jcrioszam/red-ciudadana-sub001/catalog"
	"github.com/jcrioszam/red-ciudadana-sub001/flow"
	"github.com/jcrioszam/red-ciudadana-sub001/gateway"
)

// newWizardCommand runs the guided flow in the terminal against the public
// endpoint. It drives the same controller the HTTP bridge hosts, so every
// gate and transition behaves identically.
func newWizardCommand() *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:   "wizard",
		Short: "Submit a citizen report from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWizard(cmd, baseURL)
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "https://red-ciudadana-production.up.railway.app", "backend base URL")
	return cmd
}

func runWizard(cmd *cobra.Command, baseURL string) error {
	out := cmd.OutOrStdout()
	reader := bufio.NewReader(cmd.InOrStdin())

	source := &catalog.FallbackSource{Primary: &catalog.HTTPSource{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}}
	categories, err := source.Categories(cmd.Context())
	if err != nil {
		categories = catalog.Fallback()
	}

	ctrl := flow.New(flow.Options{
		Categories: categories,
		Submitter:  gateway.NewPublicGateway(baseURL, categories),
	})
	defer ctrl.Close()

	fmt.Fprintln(out, "Reporte ciudadano")
	fmt.Fprintln(out)

	// Step 1: category and description.
	fmt.Fprintln(out, "¿Qué tipo de problema quieres reportar?")
	for i, cat := range categories {
		fmt.Fprintf(out, "  %2d. %s %s\n", i+1, cat.Icono, cat.Nombre)
	}
	for {
		choice, err := prompt(reader, out, "Número: ")
		if err != nil {
			return err
		}
		idx, convErr := strconv.Atoi(choice)
		if convErr != nil || idx < 1 || idx > len(categories) {
			fmt.Fprintln(out, "Opción no válida.")
			continue
		}
		if err := ctrl.Handle(flow.PickCategory{Value: categories[idx-1].Valor}); err != nil {
			fmt.Fprintln(out, err.Error())
			continue
		}
		break
	}
	for {
		text, err := prompt(reader, out, "Describe el problema: ")
		if err != nil {
			return err
		}
		if err := ctrl.Handle(flow.SubmitDescription{Text: text}); err != nil {
			fmt.Fprintln(out, err.Error())
			continue
		}
		break
	}

	// Step 2: location, either free text or a coordinate pair.
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Ubicación: escribe una dirección, o coordenadas como 27.08,-109.44")
	for {
		text, err := prompt(reader, out, "Ubicación: ")
		if err != nil {
			return err
		}
		if lat, lng, ok := parseCoordinates(text); ok {
			if err := enterLocationStep(ctrl, flow.UseMapLocation{}, flow.StateMapLocationEntry); err != nil {
				return err
			}
			if err := ctrl.Handle(flow.SelectMapPoint{Latitude: lat, Longitude: lng}); err != nil {
				fmt.Fprintln(out, err.Error())
				continue
			}
		} else {
			if err := enterLocationStep(ctrl, flow.UseManualLocation{}, flow.StateManualLocationEntry); err != nil {
				return err
			}
			if err := ctrl.Handle(flow.SetAddressText{Text: text}); err != nil {
				fmt.Fprintln(out, err.Error())
				continue
			}
		}
		if err := ctrl.Handle(flow.ContinueToPhoto{}); err != nil {
			fmt.Fprintln(out, err.Error())
			continue
		}
		break
	}

	// Step 3: optional photo from a file on disk.
	fmt.Fprintln(out)
	for {
		path, err := prompt(reader, out, "Ruta de una foto (enter para omitir): ")
		if err != nil {
			return err
		}
		if path == "" {
			if err := ctrl.Handle(flow.SkipPhoto{}); err != nil {
				return err
			}
			break
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			fmt.Fprintf(out, "No se pudo leer %s: %v\n", path, readErr)
			continue
		}
		if err := ctrl.Handle(flow.AttachFile{Name: filepath.Base(path), Bytes: data}); err != nil {
			fmt.Fprintln(out, err.Error())
			continue
		}
		break
	}

	// Review and submit.
	snap := ctrl.Snapshot()
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Revisa tu reporte:")
	fmt.Fprintf(out, "  Tipo:        %s\n", snap.Draft.Title)
	fmt.Fprintf(out, "  Descripción: %s\n", snap.Draft.Description)
	if loc := snap.Draft.Location; loc != nil {
		if loc.AddressText != nil {
			fmt.Fprintf(out, "  Ubicación:   %s\n", *loc.AddressText)
		} else {
			fmt.Fprintf(out, "  Ubicación:   %.5f, %.5f\n", loc.Latitude, loc.Longitude)
		}
	}
	if snap.Draft.Photo != nil {
		fmt.Fprintf(out, "  Foto:        %s (%d bytes)\n", snap.Draft.Photo.OriginalName, snap.Draft.Photo.SizeBytes)
	}

	confirm, err := prompt(reader, out, "¿Enviar? [s/N]: ")
	if err != nil {
		return err
	}
	if !strings.EqualFold(confirm, "s") && !strings.EqualFold(confirm, "si") {
		fmt.Fprintln(out, "Reporte descartado.")
		return nil
	}

	if err := ctrl.Handle(flow.Submit{}); err != nil {
		return err
	}
	fmt.Fprintln(out, "Enviando…")

	deadline := time.Now().Add(90 * time.Second)
	for time.Now().Before(deadline) {
		snap = ctrl.Snapshot()
		switch snap.State {
		case flow.StateSuccess:
			fmt.Fprintln(out, "¡Reporte enviado, gracias por tu participación!")
			return nil
		case flow.StateReview:
			return fmt.Errorf("no se pudo enviar: %s", snap.Err)
		}
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("tiempo de espera agotado al enviar")
}

// enterLocationStep routes the flow to the wanted location entry state. On
// a reprompt the flow is already past the strategy choice, so it backs out
// to the strategy step first; the entry state a retry lands on depends on
// the new input, not the previous attempt.
func enterLocationStep(ctrl *flow.Controller, strategy flow.Event, want flow.State) error {
	if ctrl.Snapshot().State == want {
		return nil
	}
	if ctrl.Snapshot().State != flow.StateChooseLocationStrategy {
		if err := ctrl.Handle(flow.Back{}); err != nil {
			return err
		}
	}
	return ctrl.Handle(strategy)
}

func prompt(reader *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func parseCoordinates(text string) (float64, float64, bool) {
	parts := strings.Split(text, ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lng, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return lat, lng, true
}
