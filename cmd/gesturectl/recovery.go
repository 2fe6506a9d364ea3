package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gesturelock/internal/vault"
	"gesturelock/internal/verifycode"
)

func (a *app) codes() *verifycode.Service {
	sender := &verifycode.LogSender{Logger: a.logger, Out: os.Stdout}
	return verifycode.New(verifycode.ConfigFrom(a.cfg.VerificationCode), a.store, sender, a.clock, a.logger)
}

func cmdQuestion(question, answer string) {
	a := openApp()
	defer a.close()

	err := a.vault.SaveSecurityInfo(vault.SecurityInfo{Question: question, Answer: answer})
	_ = a.audit.LogRecovery(context.Background(), "question_set", "security_info", err == nil)
	if err != nil {
		fail("saving security question: %v", err)
	}
	fmt.Println("Security question saved")
}

func cmdSendCode(args []string) {
	fs := flag.NewFlagSet("send-code", flag.ExitOnError)
	channel := fs.String("channel", "", "delivery channel (sms or email)")
	_ = fs.Parse(args)
	need(fs.Args(), 1, "send-code [-channel sms|email] <target>")

	a := openApp()
	defer a.close()

	codes := a.codes()
	err := codes.Send(context.Background(), fs.Arg(0), *channel)
	_ = a.audit.LogRecovery(context.Background(), "code_sent", "verification_code", err == nil)
	if errors.Is(err, verifycode.ErrCooldown) {
		fail("a code was sent recently, wait %s", codes.CooldownRemaining().Round(time.Second))
	}
	if err != nil {
		fail("sending code: %v", err)
	}
	fmt.Printf("Code sent, valid for %s\n", codes.Remaining().Round(time.Second))
}

func cmdVerifyCode(code string) {
	a := openApp()
	defer a.close()

	res, err := a.codes().Verify(code)
	if err != nil {
		fail("checking code: %v", err)
	}
	_ = a.audit.LogRecovery(context.Background(), "code_checked", "verification_code", res.Valid())

	fmt.Printf("Code: %s\n", res.Status)
	if !res.Valid() {
		a.close()
		os.Exit(1)
	}
}

func cmdReset(args []string) {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	code := fs.String("code", "", "verification code")
	answer := fs.String("answer", "", "security answer")
	_ = fs.Parse(args)
	need(fs.Args(), 1, "reset (-code c | -answer a) <seq>")
	if (*code == "") == (*answer == "") {
		fail("pass exactly one of -code or -answer")
	}

	a := openApp()
	defer a.close()

	seq := parseSeq(fs.Arg(0), a.cfg.Grid.Rows)
	if len(seq) < a.cfg.Enrollment.MinNodes {
		fail("pattern needs at least %d nodes", a.cfg.Enrollment.MinNodes)
	}

	ctx := context.Background()
	method := "answer"
	var ok bool
	if *code != "" {
		method = "code"
		res, err := a.codes().Verify(*code)
		if err != nil {
			fail("checking code: %v", err)
		}
		if !res.Valid() {
			_ = a.audit.LogRecovery(ctx, "reset", method, false)
			fail("verification code %s", res.Status)
		}
		ok = true
	} else {
		var err error
		ok, err = a.vault.VerifyAnswer(*answer)
		if errors.Is(err, vault.ErrNoSecurityInfo) {
			fail("no security question set")
		}
		if err != nil {
			fail("checking answer: %v", err)
		}
	}
	if !ok {
		_ = a.audit.LogRecovery(ctx, "reset", method, false)
		fail("wrong answer")
	}

	if err := a.vault.Reset(seq); err != nil {
		_ = a.audit.LogRecovery(ctx, "reset", method, false)
		fail("resetting pattern: %v", err)
	}
	_ = a.audit.LogRecovery(ctx, "reset", method, true)
	fmt.Printf("Pattern reset (%d nodes), lockout cleared\n", len(seq))
}
