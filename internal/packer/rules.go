package packer

// GetBuiltinRules 获取内置壳规则库
func GetBuiltinRules() []PackerRule {
	return []PackerRule{
		// 国产加固
		{
			Name:       "360加固",
			Type:       PackerTypeNative,
			NativeLibs: []string{"libjiagu.so", "libjiagu_x86.so", "libjiagu_a64.so", "libjiagu_x64.so"},
			ClassNames: []string{"com.stub.StubApp", "com.qihoo.util.QHClassLoader"},
			Assets:     []string{"assets/libjiagu"},
			Priority:   100,
		},
		{
			Name:       "腾讯乐固",
			Type:       PackerTypeNative,
			NativeLibs: []string{"libshell.so", "libshellx.so", "libtxmsecurity.so"},
			ClassNames: []string{"com.tencent.StubShell.TxAppEntry"},
			Assets:     []string{"assets/tosversion"},
			Priority:   100,
		},
		{
			Name:       "爱加密",
			Type:       PackerTypeNative,
			NativeLibs: []string{"libexec.so", "libexecmain.so"},
			ClassNames: []string{"com.shell.SuperApplication"},
			Assets:     []string{"assets/ijiami.dat", "assets/ijm_lib"},
			Priority:   100,
		},
		{
			Name:       "梆梆加固",
			Type:       PackerTypeNative,
			NativeLibs: []string{"libDexHelper.so", "libSecShell.so"},
			ClassNames: []string{"com.secneo.apkwrapper.ApplicationWrapper", "com.secneo.apkwrapper.AW"},
			Assets:     []string{"assets/secData0.jar"},
			Priority:   100,
		},
		{
			Name:       "网易易盾",
			Type:       PackerTypeNative,
			NativeLibs: []string{"libnesec.so", "libNetHTProtect.so"},
			ClassNames: []string{"com.netease.nis.wrapper.MyApplication"},
			Priority:   95,
		},
		{
			Name:       "百度加固",
			Type:       PackerTypeNative,
			NativeLibs: []string{"libbaiduprotect.so"},
			ClassNames: []string{"com.baidu.protect.StubApplication"},
			Assets:     []string{"assets/baiduprotect"},
			Priority:   90,
		},
		{
			Name:       "几维安全",
			Type:       PackerTypeVMP,
			NativeLibs: []string{"libkwscmm.so", "libkwscr.so"},
			ClassNames: []string{"com.kiwisec.android.loader.KWLoader"},
			Priority:   90,
		},
		// 国外商业保护
		{
			Name:       "DexProtector",
			Type:       PackerTypeDexEncrypt,
			NativeLibs: []string{"libdexprotector.so"},
			Assets:     []string{"assets/dp.arm.so.dat", "assets/classes.dex.dat"},
			Priority:   80,
		},
		{
			Name:       "AppSealing",
			Type:       PackerTypeNative,
			NativeLibs: []string{"libAppSealing.so", "libcovault-appsec.so"},
			ClassNames: []string{"com.inka.appsealing.AppSealingApplication"},
			Priority:   80,
		},
		{
			Name:       "DexGuard",
			Type:       PackerTypeObfuscator,
			ClassNames: []string{"o.Oo", "o.OoO", "o.oOo", "o.OOo"},
			Priority:   60,
		},
	}
}
