package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/uhyunpark/flashdex/params"
	"github.com/uhyunpark/flashdex/pkg/api"
	"github.com/uhyunpark/flashdex/pkg/app/core/transaction"
	"github.com/uhyunpark/flashdex/pkg/app/dex"
	"github.com/uhyunpark/flashdex/pkg/asset"
	"github.com/uhyunpark/flashdex/pkg/crypto"
)

func main() {
	var (
		envFile  = flag.String("env", "", "path to .env file; genesis and chain id must match the node")
		keyHex   = flag.String("key", "", "sender private key (hex); empty generates a new key")
		txType   = flag.String("type", "deposit", "transfer|approve|deposit|withdraw|make_order|cancel_order|fill_order|flash_loan")
		assetRef = flag.String("asset", "IPT", "asset symbol or address (assetGive for make_order)")
		amount   = flag.String("amount", "0", "amount in whole tokens, e.g. 1.5 (amountGive for make_order)")
		getRef   = flag.String("get", "mUSDC", "make_order: asset symbol or address wanted")
		getAmt   = flag.String("get-amount", "0", "make_order: amount wanted in whole tokens")
		orderID  = flag.Uint64("order", 0, "order id for cancel_order and fill_order")
		to       = flag.String("to", "", "transfer recipient")
		spender  = flag.String("spender", "", "approve spender (default: the exchange)")
		nonce    = flag.Uint64("nonce", 0, "tx nonce; 0 asks -api for the next nonce, or uses 1")
		apiURL   = flag.String("api", "", "node API base URL, e.g. http://localhost:8080")
		submit   = flag.Bool("submit", false, "POST the signed tx to -api")
	)
	flag.Parse()

	cfg, err := params.LoadFromEnv(*envFile)
	if err != nil {
		fail("config: %v", err)
	}
	// Genesis only: yields the exchange and token addresses and the signing domain.
	app, err := dex.NewApp(cfg)
	if err != nil {
		fail("genesis: %v", err)
	}

	var signer *crypto.Signer
	if *keyHex == "" {
		if signer, err = crypto.GenerateKey(); err != nil {
			fail("key: %v", err)
		}
		fmt.Fprintf(os.Stderr, "generated key %s for %s (KEEP SECRET!)\n", signer.PrivateKeyHex(), signer.Address().Hex())
	} else if signer, err = crypto.FromPrivateKeyHex(strings.TrimPrefix(*keyHex, "0x")); err != nil {
		fail("key: %v", err)
	}

	resolve := func(ref, human string) (string, string) {
		t, err := app.ResolveAsset(ref)
		if err != nil {
			fail("asset %s: %v", ref, err)
		}
		v, err := asset.ParseUnits(human, t.Decimals)
		if err != nil {
			fail("amount %s: %v", human, err)
		}
		return t.Address.Hex(), v.Dec()
	}

	tx := &transaction.SignedTransaction{Type: transaction.TxType(*txType)}
	switch tx.Type {
	case transaction.TxTypeTransfer:
		a, v := resolve(*assetRef, *amount)
		tx.Transfer = &transaction.TransferPayload{Asset: a, To: *to, Amount: v}
	case transaction.TxTypeApprove:
		a, v := resolve(*assetRef, *amount)
		sp := *spender
		if sp == "" {
			sp = app.ExchangeAddress().Hex()
		}
		tx.Approve = &transaction.ApprovePayload{Asset: a, Spender: sp, Amount: v}
	case transaction.TxTypeDeposit, transaction.TxTypeWithdraw, transaction.TxTypeFlashLoan:
		a, v := resolve(*assetRef, *amount)
		tx.Funds = &transaction.FundsPayload{Asset: a, Amount: v}
	case transaction.TxTypeMakeOrder:
		give, giveAmt := resolve(*assetRef, *amount)
		get, wantAmt := resolve(*getRef, *getAmt)
		tx.MakeOrder = &transaction.MakeOrderPayload{AssetGet: get, AmountGet: wantAmt, AssetGive: give, AmountGive: giveAmt}
	case transaction.TxTypeCancelOrder, transaction.TxTypeFillOrder:
		tx.OrderRef = &transaction.OrderRefPayload{OrderID: fmt.Sprint(*orderID)}
	default:
		fail("unknown tx type %q", *txType)
	}

	n := *nonce
	if n == 0 {
		n = 1
		if *apiURL != "" {
			n, err = nextNonce(*apiURL, signer)
			if err != nil {
				fail("nonce: %v", err)
			}
		}
	}

	if err := transaction.Sign(app.EIP712(), signer, tx, n); err != nil {
		fail("sign: %v", err)
	}
	if _, err := transaction.NewVerifier(app.EIP712().Domain()).Verify(tx); err != nil {
		fail("verify: %v", err)
	}

	out, err := json.MarshalIndent(tx, "", "  ")
	if err != nil {
		fail("marshal: %v", err)
	}
	fmt.Println(string(out))

	if *submit {
		if *apiURL == "" {
			fail("-submit requires -api")
		}
		raw, _ := tx.Serialize()
		if err := post(*apiURL, raw); err != nil {
			fail("submit: %v", err)
		}
	}
}

var client = &http.Client{Timeout: 10 * time.Second}

func nextNonce(base string, signer *crypto.Signer) (uint64, error) {
	resp, err := client.Get(strings.TrimRight(base, "/") + "/api/v1/accounts/" + signer.Address().Hex())
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("account lookup: %s", resp.Status)
	}
	var acct api.AccountInfo
	if err := json.NewDecoder(resp.Body).Decode(&acct); err != nil {
		return 0, err
	}
	return acct.NextNonce, nil
}

func post(base string, raw []byte) error {
	resp, err := client.Post(strings.TrimRight(base, "/")+"/api/v1/tx", "application/json", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		var e api.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s: %s: %s", resp.Status, e.Error, e.Message)
	}
	var ok api.SubmitTxResponse
	if err := json.NewDecoder(resp.Body).Decode(&ok); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "submitted %s (submission %s)\n", ok.TxHash, ok.SubmissionID)
	return nil
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
