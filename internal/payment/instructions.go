package payment

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Normalized payment methods stored on the order.
const (
	MethodBCAVA       = "BCA_VA"
	MethodBNIVA       = "BNI_VA"
	MethodBRIVA       = "BRI_VA"
	MethodPermataVA   = "PERMATA_VA"
	MethodMandiriBill = "MANDIRI_BILL"
	MethodQRIS        = "QRIS"
	MethodGoPay       = "GOPAY"
	MethodShopeePay   = "SHOPEEPAY"
	MethodAlfamart    = "ALFAMART"
	MethodIndomaret   = "INDOMARET"
	MethodCreditCard  = "CREDIT_CARD"
)

const fallbackInstruction = "Selesaikan pembayaran {{amount}} sesuai petunjuk di halaman pembayaran"

// Steps use {{amount}} and {{payment_code}} placeholders.
var instructionSteps = map[string][]string{
	MethodBCAVA: {
		"Buka BCA mobile, KlikBCA, atau ATM BCA",
		"Pilih m-Transfer, lalu BCA Virtual Account",
		"Masukkan nomor Virtual Account {{payment_code}}",
		"Cek nama merchant dan total tagihan {{amount}}",
		"Konfirmasi, lalu simpan bukti transfer",
	},
	MethodBNIVA: {
		"Buka BNI Mobile Banking atau ATM BNI",
		"Pilih Transfer, lalu Virtual Account Billing",
		"Masukkan nomor Virtual Account {{payment_code}}",
		"Cek total tagihan {{amount}} dan konfirmasi",
	},
	MethodBRIVA: {
		"Buka BRImo atau ATM BRI",
		"Pilih Pembayaran, lalu BRIVA",
		"Masukkan nomor BRIVA {{payment_code}}",
		"Cek total tagihan {{amount}} dan konfirmasi",
	},
	MethodPermataVA: {
		"Buka PermataMobile X atau ATM Permata",
		"Pilih Pembayaran Tagihan, lalu Virtual Account",
		"Masukkan nomor Virtual Account {{payment_code}}",
		"Cek total tagihan {{amount}} dan konfirmasi",
	},
	MethodMandiriBill: {
		"Buka Livin' by Mandiri atau ATM Mandiri",
		"Pilih Bayar, lalu Multi Payment",
		"Masukkan kode perusahaan Midtrans dan kode bayar {{payment_code}}",
		"Cek total tagihan {{amount}} dan konfirmasi",
	},
	MethodQRIS: {
		"Buka aplikasi bank atau e-wallet yang mendukung QRIS",
		"Pindai kode QR di halaman pembayaran",
		"Cek total tagihan {{amount}} dan konfirmasi",
	},
	MethodGoPay: {
		"Buka aplikasi Gojek atau GoPay",
		"Pindai kode QR atau buka tautan pembayaran",
		"Bayar {{amount}} dan masukkan PIN GoPay",
	},
	MethodShopeePay: {
		"Buka aplikasi Shopee dari tautan pembayaran",
		"Bayar {{amount}} dan masukkan PIN ShopeePay",
	},
	MethodAlfamart: {
		"Kunjungi gerai Alfamart terdekat",
		"Sebutkan pembayaran Midtrans ke kasir",
		"Tunjukkan kode pembayaran {{payment_code}}",
		"Bayar {{amount}} dan simpan struknya",
	},
	MethodIndomaret: {
		"Kunjungi gerai Indomaret terdekat",
		"Sebutkan pembayaran Midtrans ke kasir",
		"Tunjukkan kode pembayaran {{payment_code}}",
		"Bayar {{amount}} dan simpan struknya",
	},
	MethodCreditCard: {
		"Selesaikan verifikasi 3D Secure dari bank penerbit kartu",
		"Tunggu konfirmasi pembayaran {{amount}}",
	},
}

// InstructionsFor renders the steps a buyer follows to finish a pending payment.
func InstructionsFor(p Pending) []string {
	steps, ok := instructionSteps[p.Method]
	if !ok {
		steps = []string{fallbackInstruction}
	}

	r := strings.NewReplacer(
		"{{amount}}", FormatRupiah(p.GrossAmount),
		"{{payment_code}}", p.PaymentCode,
	)

	out := make([]string, len(steps))
	for i, step := range steps {
		out[i] = r.Replace(step)
	}
	return out
}

// FormatRupiah renders 215000 as "Rp215.000".
func FormatRupiah(amount int64) string {
	s := decimal.NewFromInt(amount).Abs().String()

	var b strings.Builder
	if amount < 0 {
		b.WriteString("-")
	}
	b.WriteString("Rp")
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return b.String()
}
