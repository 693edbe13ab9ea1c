package shell

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strings"
)

// AskQuestion 反复提问直到输入其中一个答案。
// in 为 *bufio.Reader 时直接复用，避免与后续命令循环争抢缓冲数据。
func AskQuestion(in io.Reader, out io.Writer, question string, answers []string) (string, error) {
	reader, ok := in.(*bufio.Reader)
	if !ok {
		reader = bufio.NewReader(in)
	}
	for {
		fmt.Fprintln(out, question)
		for _, a := range answers {
			fmt.Fprintln(out, "- "+a)
		}
		fmt.Fprint(out, "Choice: ")

		line, err := reader.ReadString('\n')
		choice := strings.TrimSpace(line)
		if slices.Contains(answers, choice) {
			return choice, nil
		}
		if err != nil {
			return "", fmt.Errorf("no answer: %w", err)
		}
	}
}
