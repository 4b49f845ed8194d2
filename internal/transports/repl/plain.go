package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
)

// runPlain читает команды построчно без терминального интерфейса.
func runPlain(ctx context.Context, in io.Reader, out io.Writer, exec Executor, subject, prompt string, words []string, tr Translator) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		fmt.Fprint(out, prompt)
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		cmd := scanner.Text()
		res, err := exec.Execute(ctx, subject, cmd)
		if err != nil {
			fmt.Fprintln(out, err.Error())
			if w := suggest(cmd, words); w != "" {
				fmt.Fprintf(out, "%s %s?\n", translate(tr, "did you mean"), w)
			}
			continue
		}
		if res.Output != "" {
			fmt.Fprintln(out, res.Output)
		}
		if res.Exit {
			return nil
		}
	}
}

func translate(tr Translator, key string) string {
	if tr == nil {
		return key
	}
	return tr.T(key)
}
