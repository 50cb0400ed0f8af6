package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/KaramelBytes/mvlens-cli/internal/session"
	"github.com/spf13/cobra"
)

var sessionNoUse bool

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Create, inspect and select sessions",
}

var sessionInitCmd = &cobra.Command{
	Use:   "init <name>",
	Short: "Create a new session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := sessionStore()
		if err != nil {
			return err
		}
		sess, err := store.Create(args[0])
		if err != nil {
			return err
		}
		printSuccess(cmd.OutOrStdout(), "Session created: %s", store.Dir(sess.Name))
		if sessionNoUse {
			return nil
		}
		return useSession(sess.Name)
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := sessionStore()
		if err != nil {
			return err
		}
		list, err := store.List()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(list) == 0 {
			fmt.Fprintln(out, "(no sessions)")
			return nil
		}
		current, _ := sessionName()
		rows := make([][]string, 0, len(list))
		for _, s := range list {
			mark := ""
			if s.Name == current {
				mark = "*"
			}
			rows = append(rows, []string{mark, s.Name, string(s.Type), s.Orientation,
				strconv.Itoa(len(s.FileNames)), strconv.Itoa(s.DimensionCount), s.CreatedDate.Format("2006-01-02 15:04")})
		}
		printTable(out, []string{"", "Name", "Type", "Orientation", "Files", "Dimensions", "Created"}, rows)
		return nil
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show a session and its graph settings",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			sessionFlag = args[0]
		}
		name, err := sessionName()
		if err != nil {
			return err
		}
		store, err := sessionStore()
		if err != nil {
			return err
		}
		info, err := store.Info(name)
		if err != nil {
			return err
		}
		s := info.Session
		out := cmd.OutOrStdout()
		printTitle(out, "Session "+s.Name)
		fmt.Fprintf(out, "id: %s\n", s.ID)
		fmt.Fprintf(out, "created: %s\n", s.CreatedDate.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(out, "type: %s\n", s.Type)
		fmt.Fprintf(out, "orientation: %s\n", s.Orientation)
		fmt.Fprintf(out, "files: %s\n", strings.Join(s.FileNames, ", "))
		fmt.Fprintf(out, "labels: %s\n", strings.Join(s.LabelNames, ", "))
		fmt.Fprintf(out, "dimensions: %d\n", s.DimensionCount)
		if s.ImportDimensionCount != 0 && s.ImportDimensionCount != s.DimensionCount {
			fmt.Fprintf(out, "last import attempt: %d dimensions (rejected)\n", s.ImportDimensionCount)
		}
		fmt.Fprintf(out, "pca cache: %s/%s\n", s.PredictNormalize, s.PredictMethod)
		fmt.Fprintf(out, "distance cache: %s\n", s.DistanceNormalize)
		if err := session.RequireMetadata(s); err != nil {
			printWarning(out, "%v", err)
		}
		printGraphConfigs(cmd, info.GraphConfigs)
		return nil
	},
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a session and all of its files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := sessionStore()
		if err != nil {
			return err
		}
		if err := store.Delete(args[0]); err != nil {
			return err
		}
		if current, err := sessionName(); err == nil && current == args[0] && sessionFlag == "" {
			st, err := stateStore()
			if err != nil {
				return err
			}
			if err := st.Delete(currentSessionKey); err != nil {
				return err
			}
		}
		printSuccess(cmd.OutOrStdout(), "Session deleted: %s", args[0])
		return nil
	},
}

var sessionUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Select the session used when --session is omitted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := sessionStore()
		if err != nil {
			return err
		}
		if _, err := store.Load(args[0]); err != nil {
			return err
		}
		if err := useSession(args[0]); err != nil {
			return err
		}
		printSuccess(cmd.OutOrStdout(), "Using session %s", args[0])
		return nil
	},
}

func useSession(name string) error {
	st, err := stateStore()
	if err != nil {
		return err
	}
	return st.Set(currentSessionKey, name)
}

func printGraphConfigs(cmd *cobra.Command, gc session.GraphConfigs) {
	graphs := make([]string, 0, len(gc))
	for g := range gc {
		graphs = append(graphs, string(g))
	}
	sort.Strings(graphs)
	rows := make([][]string, 0, len(graphs))
	for _, g := range graphs {
		c := gc[session.GraphType(g)]
		size := ""
		if c.Size > 0 {
			size = strconv.Itoa(c.Size)
		}
		rows = append(rows, []string{g, string(c.Normalize), string(c.ClusteringMethod),
			string(c.XClusteringMethod), string(c.YClusteringMethod), c.Orientation, size})
	}
	printTable(cmd.OutOrStdout(), []string{"Graph", "Normalize", "Method", "X method", "Y method", "Orientation", "Size"}, rows)
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionInitCmd, sessionListCmd, sessionShowCmd, sessionDeleteCmd, sessionUseCmd)
	sessionInitCmd.Flags().BoolVar(&sessionNoUse, "no-use", false, "do not select the new session")
}
