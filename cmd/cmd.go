// Package cmd implements the spongequant command line interface. Every
// subcommand except serve is a thin client for the HTTP API; serve runs
// the server in the foreground.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"slices"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/exp/maps"

	"github.com/spongeengine/spongequant/api"
	"github.com/spongeengine/spongequant/envconfig"
	"github.com/spongeengine/spongequant/format"
	"github.com/spongeengine/spongequant/gguf"
	"github.com/spongeengine/spongequant/progress"
	"github.com/spongeengine/spongequant/server"
	"github.com/spongeengine/spongequant/version"
)

var errServerNotRunning = errors.New("could not connect to spongequant server, run 'spongequant serve' to start it")

func QuantizeHandler(cmd *cobra.Command, args []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	req, err := buildQuantizeRequest(cmd, args)
	if err != nil {
		return err
	}

	d := newQuantizeDisplay(os.Stdout, os.Stderr)
	defer d.stop()

	if err := client.Quantize(cmd.Context(), req, d.update); err != nil {
		return err
	}

	return nil
}

// quantizeDisplay renders the event stream: raw tool output goes to
// stdout while statuses and transfers animate on a stderr progress UI.
// The UI is torn down whenever tool output interrupts it and rebuilt for
// the next status or transfer.
type quantizeDisplay struct {
	out io.Writer
	err io.Writer

	p       *progress.Progress
	bars    map[string]*progress.Bar
	spinner *progress.Spinner
	status  string
}

func newQuantizeDisplay(out, err io.Writer) *quantizeDisplay {
	return &quantizeDisplay{out: out, err: err}
}

func (d *quantizeDisplay) update(resp api.ProgressResponse) error {
	switch {
	case resp.Output != "":
		d.stop()
		fmt.Fprintln(d.out, resp.Output)
	case resp.Digest != "":
		d.stopSpinner()

		p := d.progress()
		bar, ok := d.bars[resp.Digest]
		if !ok {
			bar = progress.NewBar(resp.Status, resp.Total, resp.Completed)
			d.bars[resp.Digest] = bar
			p.Add(resp.Digest, bar)
		}

		bar.Set(resp.Completed)
	case resp.Status != "" && resp.Status != d.status:
		d.stopSpinner()

		d.status = resp.Status
		d.spinner = progress.NewSpinner(resp.Status)
		d.progress().Add(resp.Status, d.spinner)
	}

	return nil
}

func (d *quantizeDisplay) progress() *progress.Progress {
	if d.p == nil {
		d.p = progress.NewProgress(d.err)
		d.bars = make(map[string]*progress.Bar)
	}

	return d.p
}

func (d *quantizeDisplay) stopSpinner() {
	if d.spinner != nil {
		d.spinner.Stop()
		d.spinner = nil
	}
}

func (d *quantizeDisplay) stop() {
	d.stopSpinner()
	if d.p != nil {
		d.p.StopAndClear()
		d.p = nil
		d.bars = nil
		d.status = ""
	}
}

// buildQuantizeRequest assembles the request from positional model
// references, an optional newline-separated list file, and the method
// selection flags. A method flag that was set selects the method even
// when its parameter string is empty.
func buildQuantizeRequest(cmd *cobra.Command, args []string) (*api.QuantizeRequest, error) {
	models := slices.Clone(args)

	if file, _ := cmd.Flags().GetString("file"); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}

		models = append(models, strings.Split(string(data), "\n")...)
	}

	var cleaned []string
	for _, m := range models {
		if m = strings.TrimSpace(m); m != "" {
			cleaned = append(cleaned, m)
		}
	}

	if len(cleaned) == 0 {
		return nil, errors.New("no models given: pass references as arguments or with --file")
	}

	req := &api.QuantizeRequest{Models: cleaned}
	req.Username, _ = cmd.Flags().GetString("username")
	req.Token, _ = cmd.Flags().GetString("token")
	req.DeleteOriginal, _ = cmd.Flags().GetBool("delete-original")
	req.DeleteQuantized, _ = cmd.Flags().GetBool("delete-quantized")

	for _, name := range []string{"gguf", "gptq", "exl2", "awq", "hqq"} {
		if cmd.Flags().Changed(name) {
			params, _ := cmd.Flags().GetString(name)
			req.Methods = append(req.Methods, api.MethodRequest{Name: name, Params: params})
		}
	}

	if len(req.Methods) == 0 {
		return nil, errors.New("no method selected: pass at least one of --gguf, --gptq, --exl2, --awq, --hqq")
	}

	if enabled, _ := cmd.Flags().GetBool("imatrix"); enabled {
		opts := api.DefaultImatrixOptions()

		if file, _ := cmd.Flags().GetString("imatrix-file"); file != "" {
			opts.File = file
		}

		if calibration, _ := cmd.Flags().GetString("calibration"); calibration != "" {
			opts.Calibration = calibration
		}

		opts.Recompute, _ = cmd.Flags().GetBool("recompute-imatrix")

		kvs, _ := cmd.Flags().GetStringArray("imatrix-opt")
		if len(kvs) > 0 {
			m := make(map[string]any, len(kvs))
			for _, kv := range kvs {
				k, v, ok := strings.Cut(kv, "=")
				if !ok {
					return nil, fmt.Errorf("invalid imatrix option %q: expected key=value", kv)
				}

				m[strings.TrimSpace(k)] = strings.TrimSpace(v)
			}

			if err := opts.FromMap(m); err != nil {
				return nil, fmt.Errorf("invalid imatrix option: %w", err)
			}
		}

		req.Imatrix = &opts
	}

	return req, nil
}

func ListHandler(cmd *cobra.Command, args []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	resp, err := client.List(cmd.Context())
	if err != nil {
		return err
	}

	var data [][]string
	for _, a := range resp.Artifacts {
		if len(args) == 0 || strings.HasPrefix(strings.ToLower(a.Name), strings.ToLower(args[0])) {
			data = append(data, []string{a.Name, a.Method, format.HumanBytes(a.Size), fmt.Sprint(a.Files), format.HumanTime(a.ModifiedAt, "Never")})
		}
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"NAME", "METHOD", "SIZE", "FILES", "MODIFIED"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	return nil
}

func DeleteHandler(cmd *cobra.Command, args []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	original, _ := cmd.Flags().GetBool("original")
	quantized, _ := cmd.Flags().GetBool("quantized")

	for _, name := range args {
		req := api.DeleteRequest{Model: name, Original: original, Quantized: quantized}
		if err := client.Delete(cmd.Context(), &req); err != nil {
			return err
		}

		fmt.Printf("deleted '%s'\n", name)
	}

	return nil
}

func ShowHandler(cmd *cobra.Command, args []string) error {
	f, err := gguf.DecodeFile(args[0])
	if err != nil {
		return err
	}

	fmt.Println("  Model")
	fmt.Printf("    %-16s %s\n", "architecture", f.KV.Architecture())
	if name := f.KV.Name(); name != "" {
		fmt.Printf("    %-16s %s\n", "name", name)
	}
	fmt.Printf("    %-16s %s\n", "parameters", format.HumanNumber(f.KV.ParameterCount()))
	fmt.Printf("    %-16s %s\n", "file type", f.KV.FileType())
	fmt.Printf("    %-16s %d\n", "gguf version", f.Version)
	fmt.Printf("    %-16s %d\n", "tensors", len(f.Tensors))
	fmt.Println()

	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		fmt.Println("  Metadata")

		keys := maps.Keys(f.KV)
		slices.Sort(keys)
		for _, k := range keys {
			v := f.KV[k]
			if arr, ok := v.([]any); ok && len(arr) > 4 {
				v = fmt.Sprintf("[%v, %v, %v, %v, ... (%d values)]", arr[0], arr[1], arr[2], arr[3], len(arr))
			}

			fmt.Printf("    %-40s %v\n", k, v)
		}
		fmt.Println()
	}

	return nil
}

func VersionHandler(cmd *cobra.Command, _ []string) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return
	}

	serverVersion, err := client.Version(cmd.Context())
	if err != nil {
		fmt.Println("Warning: could not connect to a running spongequant instance")
	}

	if serverVersion != "" {
		fmt.Printf("spongequant server version is %s\n", serverVersion)
	}

	if serverVersion != version.Version {
		fmt.Printf("spongequant client version is %s\n", version.Version)
	}
}

func RunServer(_ *cobra.Command, _ []string) error {
	host, port, err := net.SplitHostPort(strings.Trim(os.Getenv("SPONGEQUANT_HOST"), "\"' "))
	if err != nil {
		host, port = "127.0.0.1", "11480"
		if ip := net.ParseIP(strings.Trim(os.Getenv("SPONGEQUANT_HOST"), "[]")); ip != nil {
			host = ip.String()
		}
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(host, port))
	if err != nil {
		return err
	}

	return server.Serve(ln)
}

func checkServerHeartbeat(cmd *cobra.Command, _ []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	if err := client.Heartbeat(cmd.Context()); err != nil {
		if !strings.Contains(err.Error(), " refused") {
			return err
		}

		return errServerNotRunning
	}

	return nil
}

func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

func NewCLI() *cobra.Command {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "spongequant",
		Short:         "LLM quantization pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			if version, _ := cmd.Flags().GetBool("version"); version {
				VersionHandler(cmd, args)
				return
			}

			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	serveCmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start spongequant",
		Args:    cobra.ExactArgs(0),
		RunE:    RunServer,
	}

	quantizeCmd := &cobra.Command{
		Use:     "quantize MODEL [MODEL...]",
		Aliases: []string{"quant"},
		Short:   "Quantize models and publish the results",
		Args:    cobra.ArbitraryArgs,
		PreRunE: checkServerHeartbeat,
		RunE:    QuantizeHandler,
	}

	quantizeCmd.Flags().StringP("file", "f", "", "File with one model reference per line")
	quantizeCmd.Flags().String("gguf", "", "Select GGUF quantization with a comma-separated list of quant types (\"\" for the default set)")
	quantizeCmd.Flags().String("gptq", "", "Select GPTQ quantization with \"bits, group_size, damp_percent\"")
	quantizeCmd.Flags().String("exl2", "", "Select ExLlamaV2 quantization with the target bits per weight")
	quantizeCmd.Flags().String("awq", "", "Select AWQ quantization with \"bits, group_size, version, zero_point\"")
	quantizeCmd.Flags().String("hqq", "", "Select HQQ quantization with \"bits, group_size\"")
	quantizeCmd.Flags().Bool("imatrix", false, "Compute or reuse an importance matrix for GGUF")
	quantizeCmd.Flags().String("imatrix-file", "", "Importance matrix output path")
	quantizeCmd.Flags().String("calibration", "", "Calibration data file for the importance matrix")
	quantizeCmd.Flags().Bool("recompute-imatrix", false, "Recompute the importance matrix even if it exists")
	quantizeCmd.Flags().StringArray("imatrix-opt", nil, "Importance matrix option as key=value (chunk, ngl, verbosity, ...)")
	quantizeCmd.Flags().String("username", "", "Hub account to publish quantized models under")
	quantizeCmd.Flags().String("token", "", "Hub access token")
	quantizeCmd.Flags().Bool("delete-original", false, "Delete the downloaded model after quantization")
	quantizeCmd.Flags().Bool("delete-quantized", false, "Delete the quantized outputs after publishing")

	listCmd := &cobra.Command{
		Use:     "list [PREFIX]",
		Aliases: []string{"ls"},
		Short:   "List quantized artifacts",
		Args:    cobra.MaximumNArgs(1),
		PreRunE: checkServerHeartbeat,
		RunE:    ListHandler,
	}

	rmCmd := &cobra.Command{
		Use:     "rm MODEL [MODEL...]",
		Aliases: []string{"delete"},
		Short:   "Remove local artifacts for a model",
		Args:    cobra.MinimumNArgs(1),
		PreRunE: checkServerHeartbeat,
		RunE:    DeleteHandler,
	}

	rmCmd.Flags().Bool("original", false, "Also remove the downloaded model copy")
	rmCmd.Flags().Bool("quantized", true, "Remove the quantized output directories")

	showCmd := &cobra.Command{
		Use:   "show FILE",
		Short: "Show the header of a local GGUF file",
		Args:  cobra.ExactArgs(1),
		RunE:  ShowHandler,
	}

	showCmd.Flags().BoolP("verbose", "v", false, "Show the full metadata")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run:   VersionHandler,
	}

	envVars := envconfig.AsMap()
	envs := []envconfig.EnvVar{envVars["SPONGEQUANT_HOST"]}

	for _, cmd := range []*cobra.Command{quantizeCmd, listCmd, rmCmd} {
		appendEnvDocs(cmd, envs)
	}

	appendEnvDocs(serveCmd, []envconfig.EnvVar{
		envVars["SPONGEQUANT_HOST"],
		envVars["SPONGEQUANT_ORIGINS"],
		envVars["SPONGEQUANT_DEBUG"],
		envVars["SPONGEQUANT_MODELS"],
		envVars["SPONGEQUANT_QUANTIZED"],
		envVars["SPONGEQUANT_LLAMA_CPP"],
		envVars["SPONGEQUANT_PYTHON"],
		envVars["SPONGEQUANT_RUNNERS"],
		envVars["SPONGEQUANT_ALLOC_CONF"],
		envVars["HF_TOKEN"],
		envVars["HF_ENDPOINT"],
	})

	rootCmd.AddCommand(
		serveCmd,
		quantizeCmd,
		listCmd,
		rmCmd,
		showCmd,
		versionCmd,
	)

	return rootCmd
}
